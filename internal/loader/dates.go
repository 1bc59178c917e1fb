package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BuddhistEraOffset is the fixed additive offset between a Buddhist-era
// year and the common era: BE 2568 is CE 2025.
const BuddhistEraOffset = 543

// beYearThreshold separates the two calendars. Portal data never reaches
// common-era year 2400, and Buddhist-era years below it died with the 19th
// century, so any year at or above the threshold is Buddhist era.
const beYearThreshold = 2400

// ToCommonEraYear converts a year that may be expressed in the Buddhist
// era to the common era. Years already below the threshold pass through.
func ToCommonEraYear(year int) int {
	if year >= beYearThreshold {
		return year - BuddhistEraOffset
	}
	return year
}

// ParseThaiDate parses the date representations observed in portal
// exports: "2/10/2568", "02/10/2568", "02-10-2568" (day first) and
// "2568-10-02" (year first). Years in either era are accepted; Buddhist
// era years are converted with the fixed offset.
func ParseThaiDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	sep := "/"
	if !strings.Contains(s, "/") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized date %q", s)
		}
		nums[i] = n
	}

	var day, month, year int
	if nums[0] > 31 {
		// Year-first form.
		year, month, day = nums[0], nums[1], nums[2]
	} else {
		day, month, year = nums[0], nums[1], nums[2]
	}

	year = ToCommonEraYear(year)

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date %q out of range", s)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (Feb 30 becomes Mar 2); reject that.
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, fmt.Errorf("date %q does not exist", s)
	}
	return t, nil
}

// ParseAmount parses a monetary cell, tolerating thousands separators and
// surrounding whitespace. Empty cells are zero.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
