// Command inspect dumps stored messages and reactions from a BadgerDB
// directory, read-only, even while the server holds the lock.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"chat-hub/repositories"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg: or react:)")
	colours := flag.Bool("colours", true, "Colourize the output header")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	header := fmt.Sprintf("  ====== scanning %q in %s ======", *prefix, *dbPath)
	if *colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "ID", "Channel", "Author", "Type", "Lang", "At", "Content"})
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			// Sequence bookkeeping keys carry no payload worth showing
			if strings.HasPrefix(rawKey, "seq:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				if strings.HasPrefix(rawKey, "react:") {
					table.Append([]string{rawKey, "", "", "", "reaction", "", "", string(v)})
					return nil
				}

				record, err := repositories.DecodeMessage(v)
				if err != nil {
					// Log and keep going instead of stopping the whole scan
					fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
					return nil
				}
				table.Append([]string{
					rawKey,
					fmt.Sprintf("%d", record.ID),
					string(record.Channel),
					string(record.Author),
					string(record.Type),
					record.Lang,
					record.At.Format("15:04:05"),
					record.Content,
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

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
