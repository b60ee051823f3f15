package burrow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/burrow"
	"github.com/hupe1980/burrow/blobstore"
)

func Example() {
	ctx := context.Background()

	db, err := burrow.Open(ctx, burrow.Memory())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	users, err := db.Map("users", 4)
	if err != nil {
		log.Fatal(err)
	}
	if _, _, err := users.Put("ada", "lovelace"); err != nil {
		log.Fatal(err)
	}

	v, ok, err := users.Get("ada")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(v, ok, users.Len())
	// Output: lovelace true 1
}

func ExampleDB_Backup() {
	ctx := context.Background()
	backups := blobstore.NewMemoryStore()

	db, err := burrow.Open(ctx, burrow.Memory())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	events, err := db.OrderedMap("events")
	if err != nil {
		log.Fatal(err)
	}
	for _, k := range []string{"b", "c", "a"} {
		if _, _, err := events.Put(k, k+k); err != nil {
			log.Fatal(err)
		}
	}
	if _, err := db.Backup(ctx, backups, "2024-01-01.bak"); err != nil {
		log.Fatal(err)
	}

	restored, err := burrow.Open(ctx, burrow.Memory(), burrow.WithRestore(backups, ""))
	if err != nil {
		log.Fatal(err)
	}
	defer restored.Close()

	events, err = restored.OrderedMap("events")
	if err != nil {
		log.Fatal(err)
	}
	for e, err := range events.Ascend() {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(e.Key, e.Value)
	}
	// Output:
	// a aa
	// b bb
	// c cc
}
