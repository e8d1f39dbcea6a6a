package model

import (
	"fmt"
	"time"
)

// TimeFormat 是对外展示时间时统一使用的格式，秒级精度。
const TimeFormat = "2006-01-02 15:04:05"

// LocalTime is a custom time type to format time as "YYYY-MM-DD HH:MM:SS".
type LocalTime time.Time

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	formatted := fmt.Sprintf("\"%s\"", time.Time(t).Format(TimeFormat))
	return []byte(formatted), nil
}
