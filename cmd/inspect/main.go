package main

import (
	"chat-relay/repositories"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg: or user:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
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

	users := strings.HasPrefix(*prefix, "user")
	if users {
		table.SetHeader([]string{"Key", "ID", "Username", "Email", "Created"})
	} else {
		table.SetHeader([]string{"Key", "ID", "At", "Author", "Edited", "Content"})
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				row, err := toRow(key, v, users)
				if err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}
				table.Append(row)
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

func toRow(key string, v []byte, users bool) ([]string, error) {
	if users {
		var u repositories.User
		if err := json.Unmarshal(v, &u); err != nil {
			return nil, err
		}
		return []string{key, shortID(u.ID), u.Username, u.Email, u.CreatedAt.Format("2006-01-02 15:04")}, nil
	}

	var m repositories.DiskMessage
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, err
	}
	edited := ""
	if m.EditedAt != nil {
		edited = m.EditedAt.Format("15:04:05")
	}
	return []string{key, shortID(m.ID.String()), m.At.Format("15:04:05.000"), m.Author, edited, m.Content}, nil
}

// shortID keeps the first 8 characters for readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
