// Command tombstone deletes, restores and inspects tombstoned catalog
// records in PostgreSQL.
package main

import "github.com/marshallshelly/pebble-tombstone/cmd/tombstone/commands"

func main() {
	commands.Execute()
}
