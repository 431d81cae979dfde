package gormutil

import "gorm.io/gorm"

// Config is the GORM configuration shared by the server and the tests.
// TranslateError is required for unique violations to map to domain errors.
func Config() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
}
