package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/vaadin/testbench-sub002/internal/screenshot"
)

const (
	// DriverName is the project-specific SQLCipher driver with custom SQL functions.
	DriverName = "sqlite3_testbench"
)

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("regions_area", sqliteRegionsArea, true); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "already exists") {
					return nil
				}
				return fmt.Errorf("register regions_area SQL function: %w", err)
			}
			return nil
		},
	})
}

// sqliteRegionsArea returns the pixel area covered by a JSON encoded region
// list. NULL and empty input count as zero.
func sqliteRegionsArea(input any) (int64, error) {
	var data []byte
	switch x := input.(type) {
	case nil:
		return 0, nil
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return 0, fmt.Errorf("unsupported regions_area input type: %T", input)
	}
	if len(data) == 0 {
		return 0, nil
	}

	var regions []screenshot.ErrorRegion
	if err := json.Unmarshal(data, &regions); err != nil {
		return 0, fmt.Errorf("regions_area: %w", err)
	}
	var area int64
	for _, r := range regions {
		area += int64(r.Width()) * int64(r.Height())
	}
	return area, nil
}
