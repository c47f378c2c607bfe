package database

// Register all storage backends.
import (
	_ "github.com/safing/recordstore/database/storage/badger"
	_ "github.com/safing/recordstore/database/storage/bbolt"
	_ "github.com/safing/recordstore/database/storage/fstree"
	_ "github.com/safing/recordstore/database/storage/hashmap"
)
