package pool_test

import (
	"fmt"

	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// ExampleNewRecord shows the record lifecycle between a source and a destination.
func ExampleNewRecord() {
	data := pool.GetMap()
	data["date"] = "2024-01-05"
	data["counts"] = "10"

	record := pool.NewRecord("appstore", data)
	defer record.Release()

	record.Metadata.Table = "app-downloads-detailed"
	record.SetMetadata("app_id", "123")

	counts, _ := record.GetData("counts")
	appID, _ := record.GetMetadata("app_id")
	fmt.Println(record.Metadata.Table, counts, appID)

	// Output:
	// app-downloads-detailed 10 123
}

// ExampleNew demonstrates a custom typed pool.
func ExampleNew() {
	type buffer struct{ data []byte }

	p := pool.New(
		func() *buffer { return &buffer{data: make([]byte, 0, 64)} },
		func(b *buffer) { b.data = b.data[:0] },
	)

	b := p.Get()
	b.data = append(b.data, "hello"...)
	fmt.Println(string(b.data))
	p.Put(b)

	fmt.Println(p.Stats().InUse)

	// Output:
	// hello
	// 0
}
