package postgres

type Option func(s *Storage)

func WithDatabaseName(databaseName string) Option {
	return func(s *Storage) {
		s.databaseName = databaseName
	}
}

func WithDatabaseSchema(databaseSchema string) Option {
	return func(s *Storage) {
		s.databaseSchema = databaseSchema
	}
}

func WithDatabasePrefix(databasePrefix string) Option {
	return func(s *Storage) {
		s.databasePrefix = databasePrefix
	}
}
