package boltdb

import (
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

type Config struct {
	FilePath string        `yaml:"filepath" envconfig:"BOLT_FILE_PATH" default:"lending.db"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"BOLT_TIMEOUT" default:"5s"`
}

// NewBoltDB opens the database file and makes sure every bucket exists.
func NewBoltDB(cfg Config, buckets ...string) (*bolt.DB, error) {
	db, err := bolt.Open(cfg.FilePath, 0o600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, errB := tx.CreateBucketIfNotExists([]byte(name)); errB != nil {
				return fmt.Errorf("failed to create %s bucket: %v", name, errB)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up buckets: %v", err)
	}
	return db, nil
}
