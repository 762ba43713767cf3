// Package all wires all built-in source connectors into the source factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each connector package, which register
// their factories with the source package. After a blank import of this
// package, the following source kinds are available via source.Open:
//
//   - "postgres" (importkit/internal/source/postgres)
//   - "mysql"    (importkit/internal/source/mysql)
//   - "mssql"    (importkit/internal/source/mssql)
//   - "sqlite"   (importkit/internal/source/sqlite)
//   - "csv"      (importkit/internal/source/csvfile)
//   - "rest"     (importkit/internal/source/rest)
//
// Binaries that only need a subset can blank-import individual connector
// packages instead.
package all

import (
	_ "importkit/internal/source/csvfile"
	_ "importkit/internal/source/mssql"
	_ "importkit/internal/source/mysql"
	_ "importkit/internal/source/postgres"
	_ "importkit/internal/source/rest"
	_ "importkit/internal/source/sqlite"
)
