package db

// IndexBuilder assembles an IndexDefinition attribute by attribute.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a JSON index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix restricts the index to keys under the given prefixes.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Tag adds a TAG attribute at path.
func (b *IndexBuilder) Tag(path, alias string) *IndexBuilder {
	return b.add(IndexField{Path: path, Alias: alias, Type: IndexFieldTag})
}

// Numeric adds a NUMERIC attribute at path.
func (b *IndexBuilder) Numeric(path, alias string) *IndexBuilder {
	return b.add(IndexField{Path: path, Alias: alias, Type: IndexFieldNumeric})
}

// Vector adds a VECTOR attribute at path.
func (b *IndexBuilder) Vector(path, alias string, p VectorParams) *IndexBuilder {
	return b.add(IndexField{Path: path, Alias: alias, Type: IndexFieldVector, Vector: p})
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}
