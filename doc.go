// Package graphorm maps graphs of Go structs onto relational storage.
//
// Entities are plain structs with an identity field, either a schema.ID or
// an integer named ID or tagged orm:"id". Every other exported field is
// persisted:
//
//	type Cat struct {
//		ID       schema.ID
//		Name     string
//		OtherCat *Cat           // owned: saved and deleted with the cat
//		Kittens  []*Kitten      // owned collection, one join table
//		Friends  []*Cat `orm:"ref"` // reference collection
//	}
//
// Owned fields cascade: saving a cat saves its kittens, and a kitten
// dropped from Kittens is deleted once no cat lists it anymore. Reference
// fields only store the identity, and their targets must already be saved.
//
// A DataSource ties registered entities to a backend:
//
//	ds, err := graphorm.New(sql.New(dialect.SQLite, dsn), graphorm.Entities(Cat{}, Kitten{}))
//	if err != nil {
//		return err
//	}
//	if err := ds.Open(ctx); err != nil {
//		return err
//	}
//	defer ds.Close()
//
//	if err := ds.Save(ctx, &Cat{Name: "Bella"}); err != nil {
//		return err
//	}
//	cats, err := graphorm.GetAll[Cat](ctx, ds, graphorm.Where("name = ?", "Bella"))
//
// Fetches resolve relations with one query per field and level, not per
// row, and a row reached twice within one call maps to the same instance,
// so cyclic graphs load without recursion.
package graphorm
