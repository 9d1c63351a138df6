// Package all registers every store backend.
package all

import (
	_ "github.com/JonMunkholm/exportappend/internal/store/mysql"
	_ "github.com/JonMunkholm/exportappend/internal/store/postgres"
	_ "github.com/JonMunkholm/exportappend/internal/store/sqlserver"
)
