package durable

import "go.trai.ch/zerr"

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Open creates the store selected by driver. For sqlite, path is the
// database file; for file, it is the directory.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverFile:
		s, err := NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, zerr.With(ErrUnknownDriver, "driver", driver)
	}
}
