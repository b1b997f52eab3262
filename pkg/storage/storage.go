package storage

type CloudStorage interface {
	Save(name string, data []byte, tags map[string]string) error
	Load(name string) ([]byte, error)
}
