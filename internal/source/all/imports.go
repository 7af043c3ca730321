// Package all wires every built-in Row Source backend into the source
// registry. Import it for side effects only:
//
//	import _ "sql2csv/internal/source/all"
//
// after which source.New accepts the kinds "mssql", "postgres", "mysql" and
// "sqlite". A binary that needs fewer drivers can import the backend packages
// it wants directly instead.
package all

import (
	_ "sql2csv/internal/source/mssql"
	_ "sql2csv/internal/source/mysql"
	_ "sql2csv/internal/source/postgres"
	_ "sql2csv/internal/source/sqlite"
)
