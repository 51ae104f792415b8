package schema

import (
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlexpr/dialect"
)

func newPostgres(conn *dialect.Connection) *editor {
	return &editor{
		conn:        conn,
		deleteIndex: "DROP INDEX IF EXISTS {name}",
		using:       usingAfterTable,
		literals: literals{
			trueValue:  "TRUE",
			falseValue: "FALSE",
			timeFormat: time.RFC3339Nano,
			quote:      quoteStandard,
			bytes:      byteaLiteral,
		},
	}
}

func newSQLite(conn *dialect.Connection) *editor {
	return &editor{
		conn:        conn,
		deleteIndex: "DROP INDEX {name}",
		using:       usingUnsupported,
		literals: literals{
			trueValue:  "1",
			falseValue: "0",
			// The layout go-sqlite3 writes time.Time values with.
			timeFormat: sqlite3.SQLiteTimestampFormats[0],
			quote:      quoteStandard,
			bytes:      hexBlob,
		},
	}
}

func newMySQL(conn *dialect.Connection) *editor {
	return &editor{
		conn:        conn,
		deleteIndex: "DROP INDEX {name} ON {table}",
		using:       usingAfterName,
		literals: literals{
			trueValue:  "1",
			falseValue: "0",
			timeFormat: "2006-01-02 15:04:05.999999",
			quote:      quoteMySQL,
			bytes:      hexBlob,
		},
	}
}

func newGeneric(conn *dialect.Connection) *editor {
	return &editor{
		conn:        conn,
		deleteIndex: "DROP INDEX {name}",
		using:       usingAfterTable,
		literals: literals{
			trueValue:  "TRUE",
			falseValue: "FALSE",
			timeFormat: "2006-01-02 15:04:05.999999999",
			quote:      quoteStandard,
			bytes:      hexBlob,
		},
	}
}
