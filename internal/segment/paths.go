// Package segment implements the immutable, on-disk segment: column
// files plus the auxiliary indexes described in spec §4.3/§4.4/§6.
package segment

import (
	"fmt"
	"path/filepath"
)

// File naming follows spec §6 exactly: "<uid>_<field>.<ext>" per column,
// "<uid>.zones" and "<uid>.catalog" per event type.
func ColumnPath(dir, uid, field string) string  { return filepath.Join(dir, fmt.Sprintf("%s_%s.col", uid, field)) }
func XFPath(dir, uid, field string) string      { return filepath.Join(dir, fmt.Sprintf("%s_%s.xf", uid, field)) }
func ZXFPath(dir, uid, field string) string     { return filepath.Join(dir, fmt.Sprintf("%s_%s.zxf", uid, field)) }
func EBMPath(dir, uid, field string) string     { return filepath.Join(dir, fmt.Sprintf("%s_%s.ebm", uid, field)) }
func CalPath(dir, uid, field string) string     { return filepath.Join(dir, fmt.Sprintf("%s_%s.cal", uid, field)) }
func TFIPath(dir, uid, field string) string     { return filepath.Join(dir, fmt.Sprintf("%s_%s.tfi", uid, field)) }
func RLTEPath(dir, uid, field string) string    { return filepath.Join(dir, fmt.Sprintf("%s_%s.rlte", uid, field)) }
func ZonesPath(dir, uid string) string          { return filepath.Join(dir, fmt.Sprintf("%s.zones", uid)) }
func CatalogPath(dir, uid string) string        { return filepath.Join(dir, fmt.Sprintf("%s.catalog", uid)) }
