package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"collab-hub/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func main() {
	dbPath := flag.String("db", os.Getenv("BADGER_FILEPATH"), "Path to badger DB")
	eventID := flag.String("event", "", "Restrict the scan to one event room")
	asJSON := flag.Bool("json", false, "Print raw records as JSON instead of a table")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing -db or BADGER_FILEPATH")
	}
	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	prefix := "env:"
	if *eventID != "" {
		prefix = fmt.Sprintf("env:%s:", *eventID)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Event", "Epoch", "Seq", "Type", "Sender", "Time", "Payload"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	marshaler := protojson.MarshalOptions{Multiline: true, Indent: "  "}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var record structpb.Struct
				if err := proto.Unmarshal(v, &record); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				if *asJSON {
					fmt.Printf("%s\n%s\n", item.Key(), marshaler.Format(&record))
					return nil
				}
				stored, err := repositories.FromRecord(&record)
				if err != nil {
					fmt.Printf("Invalid record %s: %v\n", string(item.Key()), err)
					return nil
				}
				table.Append([]string{
					stored.EventID,
					fmt.Sprintf("%d", stored.Epoch),
					fmt.Sprintf("%d", stored.Sequence),
					string(stored.Type),
					stored.SenderID,
					stored.Timestamp.Format(time.RFC3339),
					truncate(strings.Join(strings.Fields(string(stored.Payload)), " "), 80),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	if !*asJSON {
		table.Render()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
