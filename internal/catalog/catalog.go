// Package catalog is the demo domain the CLI operates on: users own
// products, products own variants and images. Every cascade mode appears
// once.
package catalog

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/marshallshelly/pebble-tombstone/pkg/cascade"
	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

func init() {
	schema.RegisterTableName("User", "users")
	schema.RegisterTableName("Product", "products")
	schema.RegisterTableName("ProductVariant", "product_variants")
	schema.RegisterTableName("ProductImage", "product_images")
}

// User is the actor type tombstoned_by_id refers to. Deleting a user
// schedules its products in the background.
type User struct {
	tombstone.State
	ID       int64      `po:"id,primaryKey,bigserial"`
	Email    string     `po:"email,text,notNull,unique"`
	Name     string     `po:"name,text,notNull"`
	Products []*Product `po:"-,hasMany,foreignKey(owner_id),cascade(deferred)"`
}

type Product struct {
	tombstone.State
	ID       int64             `po:"id,primaryKey,bigserial"`
	OwnerID  int64             `po:"owner_id,bigint,notNull,fk(users.id)"`
	Name     string            `po:"name,text,notNull"`
	Variants []*ProductVariant `po:"-,hasMany,foreignKey(product_id),cascade(inline)"`
	Images   []*ProductImage   `po:"-,hasMany,foreignKey(product_id),cascade(bulkUpdate)"`
}

type ProductVariant struct {
	tombstone.State
	ID         int64  `po:"id,primaryKey,bigserial"`
	ProductID  int64  `po:"product_id,bigint,notNull,fk(products.id)"`
	SKU        string `po:"sku,text,notNull,unique"`
	PriceCents int64  `po:"price_cents,bigint,notNull"`
}

type ProductImage struct {
	tombstone.State
	ID        int64  `po:"id,primaryKey,bigserial"`
	ProductID int64  `po:"product_id,bigint,notNull,fk(products.id)"`
	URL       string `po:"url,text,notNull"`
}

func (u *User) Label() string           { return fmt.Sprintf("%s <%s>", u.Name, u.Email) }
func (p *Product) Label() string        { return p.Name }
func (v *ProductVariant) Label() string { return v.SKU }
func (i *ProductImage) Label() string   { return i.URL }

// Labeler is implemented by every catalog model.
type Labeler interface {
	Label() string
}

// Models returns a zero value of every catalog model, actor first.
func Models() []any {
	return []any{User{}, Product{}, ProductVariant{}, ProductImage{}}
}

// Register registers the catalog with the engine.
func Register(e *cascade.Engine) error {
	return e.Register(Models()...)
}

// Lookup resolves a CLI type argument to a catalog model. It accepts the
// Go type name or the table name, case-insensitively.
func Lookup(name string) (any, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, m := range Models() {
		t := reflect.TypeOf(m)
		if want == strings.ToLower(t.Name()) || want == schema.TableNameFor(t) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown type %q (want one of %s)", name, strings.Join(Names(), ", "))
}

// Names lists the table names of the catalog models.
func Names() []string {
	names := make([]string, 0, len(Models()))
	for _, m := range Models() {
		names = append(names, schema.TableNameFor(reflect.TypeOf(m)))
	}
	return names
}
