package config

import "errors"

var (
	ErrNilPointer    = errors.New("config: nil target")
	ErrLoadingEnv    = errors.New("config: cannot read env file")
	ErrParsingConfig = errors.New("config: invalid environment")
)
