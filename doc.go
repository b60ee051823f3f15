// Package burrow is an embeddable, disk-backed keyed storage engine.
//
// A burrow database is a single volume holding any number of named
// structures: hash maps, ordered maps, sets, counters and record
// collections with secondary indexes. Maps are hybrid tries whose buckets
// turn into skip lists when they grow, so point lookups stay shallow while
// ordered maps support range scans.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := burrow.Open(ctx, burrow.Mmap("./data/app.brw"))
//	defer db.Close()
//
//	users, _ := db.Map("users", 4)
//	users.Put("alice", int64(30))
//	v, ok, _ := users.Get("alice")
//
//	db.Commit() // durable after this
//
// # Backends
//
//	burrow.Mmap(path)  // memory-mapped file (default for persistent data)
//	burrow.File(path)  // positioned file I/O
//	burrow.Memory()    // in-process, for tests and scratch data
//
// # Records and Indexes
//
//	people, _ := db.Records(record.Descriptor{
//	    Entity:     codec.EntityDescriptor{Name: "person", Versions: [][]string{{"id", "name", "age"}}},
//	    Identifier: "id",
//	    Indexes:    []string{"age"},
//	})
//	id, _ := people.Save(codec.Entity{Values: map[string]any{"name": "bob", "age": int64(41)}})
//	age, _ := people.Index("age")
//	refs, _ := age.FindAllAbove(int64(40), true)
//
// # Backups
//
//	bs := blobstore.NewLocalStore("/backups")
//	info, _ := db.Backup(ctx, bs, "nightly-0001.bak")
//	err := db.Restore(ctx, bs, "") // "" restores the published LATEST
//
// Backups can also go to Amazon S3 (blobstore/s3) or MinIO
// (blobstore/minio).
package burrow
