package assets

// Loader reads and validates one asset file. The concrete result depends on the kind.
type Loader interface {
	Load(path string) (interface{}, error)
}
