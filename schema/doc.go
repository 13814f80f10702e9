// Package schema describes the shape of tabular data: models, their typed
// columns, candidate and foreign keys, child relationships and validators.
//
// Models are declared with a Builder once, at schema-construction time, and
// are immutable afterwards. They are shared by every data set and statement
// built over them.
//
// # Declaring models
//
//	b := schema.NewBuilder()
//
//	cat := b.Model("ProductCategory").Table("SalesLT", "ProductCategory")
//	cat.Column("ProductCategoryID", schema.TypeInt32).Identity(1, 1)
//	cat.Column("ParentProductCategoryID", schema.TypeInt32).Nullable()
//	cat.Column("Name", schema.TypeString).Size(50)
//	cat.Column("rowguid", schema.TypeGuid).Default(expr.MustCall("NEWID"))
//	cat.ForeignKey("FK_ProductCategory_Parent", "ProductCategory", "ParentProductCategoryID")
//	cat.Child("Products", "Product", "FK_Product_ProductCategory")
//
//	s, err := b.Build()
//
// # Capabilities
//
// Consumers that only need part of a model accept the capability interfaces
// HasPrimaryKey and HasChildren instead of *Model.
//
// # Staging models
//
// NewStaging derives the session-scoped staging shape of a model used by the
// hierarchical insert engine. A staging model keeps the ID of its source so
// that temporary objects can be keyed by model identity.
package schema
