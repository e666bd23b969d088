package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type TransactionDirection string

const (
	TransactionDirectionIncome  TransactionDirection = "Income"
	TransactionDirectionExpense TransactionDirection = "Expense"
)

// convert enum to send response
func (t TransactionDirection) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

// convert input to enum type
func (t *TransactionDirection) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("transaction direction must be string")
	}
	switch str {
	case "Income":
		*t = TransactionDirectionIncome
	case "Expense":
		*t = TransactionDirectionExpense
	default:
		return errors.New("invalid transaction direction")
	}
	return nil
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "Pending"
	TransactionStatusPaid      TransactionStatus = "Paid"
	TransactionStatusCancelled TransactionStatus = "Cancelled"
)

func (t TransactionStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *TransactionStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("transaction status must be string")
	}
	transactionStatuses := map[string]TransactionStatus{
		"Pending":   TransactionStatusPending,
		"Paid":      TransactionStatusPaid,
		"Cancelled": TransactionStatusCancelled,
	}
	var ok bool
	*t, ok = transactionStatuses[str]
	if !ok {
		return errors.New("invalid transaction status")
	}
	return nil
}

// TransactionDisplayStatus is the read-time status. Overdue is never stored;
// it is derived from Pending plus a due date in the past.
type TransactionDisplayStatus string

const (
	TransactionDisplayStatusPending   TransactionDisplayStatus = "Pending"
	TransactionDisplayStatusPaid      TransactionDisplayStatus = "Paid"
	TransactionDisplayStatusCancelled TransactionDisplayStatus = "Cancelled"
	TransactionDisplayStatusOverdue   TransactionDisplayStatus = "Overdue"
)

func (t TransactionDisplayStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

type RecurringFrequency string

const (
	RecurringFrequencyDaily     RecurringFrequency = "Daily"
	RecurringFrequencyWeekly    RecurringFrequency = "Weekly"
	RecurringFrequencyMonthly   RecurringFrequency = "Monthly"
	RecurringFrequencyQuarterly RecurringFrequency = "Quarterly"
	RecurringFrequencyYearly    RecurringFrequency = "Yearly"
)

func (t RecurringFrequency) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *RecurringFrequency) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("recurring frequency must be string")
	}
	recurringFrequencies := map[string]RecurringFrequency{
		"Daily":     RecurringFrequencyDaily,
		"Weekly":    RecurringFrequencyWeekly,
		"Monthly":   RecurringFrequencyMonthly,
		"Quarterly": RecurringFrequencyQuarterly,
		"Yearly":    RecurringFrequencyYearly,
	}
	var ok bool
	*t, ok = recurringFrequencies[str]
	if !ok {
		return errors.New("invalid recurring frequency")
	}
	return nil
}

type DeletionScope string

const (
	DeletionScopeSingle DeletionScope = "Single"
	DeletionScopeSeries DeletionScope = "Series"
)

func (t DeletionScope) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *DeletionScope) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("deletion scope must be string")
	}
	switch str {
	case "Single":
		*t = DeletionScopeSingle
	case "Series":
		*t = DeletionScopeSeries
	default:
		return errors.New("invalid deletion scope")
	}
	return nil
}

type FiscalYear string

const (
	FiscalYearJan FiscalYear = "Jan"
	FiscalYearFeb FiscalYear = "Feb"
	FiscalYearMar FiscalYear = "Mar"
	FiscalYearApr FiscalYear = "Apr"
	FiscalYearMay FiscalYear = "May"
	FiscalYearJun FiscalYear = "Jun"
	FiscalYearJul FiscalYear = "Jul"
	FiscalYearAug FiscalYear = "Aug"
	FiscalYearSep FiscalYear = "Sep"
	FiscalYearOct FiscalYear = "Oct"
	FiscalYearNov FiscalYear = "Nov"
	FiscalYearDec FiscalYear = "Dec"
)

func (t FiscalYear) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *FiscalYear) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("fiscal year must be string")
	}
	fiscalYears := map[string]FiscalYear{
		"Jan": FiscalYearJan,
		"Feb": FiscalYearFeb,
		"Mar": FiscalYearMar,
		"Apr": FiscalYearApr,
		"May": FiscalYearMay,
		"Jun": FiscalYearJun,
		"Jul": FiscalYearJul,
		"Aug": FiscalYearAug,
		"Sep": FiscalYearSep,
		"Oct": FiscalYearOct,
		"Nov": FiscalYearNov,
		"Dec": FiscalYearDec,
	}
	var ok bool
	*t, ok = fiscalYears[str]
	if !ok {
		return errors.New("invalid fiscal year")
	}
	return nil
}

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleOwner UserRole = "O"
	UserRoleStaff UserRole = "S"
)

func (t UserRole) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *UserRole) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("user role must be string")
	}
	switch str {
	case "A":
		*t = UserRoleAdmin
	case "O":
		*t = UserRoleOwner
	case "S":
		*t = UserRoleStaff
	default:
		return errors.New("invalid user role")
	}
	return nil
}

type MyDateString time.Time

func (t MyDateString) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(t).String())), nil
}

// Parse the string into time.Time object
func (t *MyDateString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("MyDateString must be string")
	}

	// Parse the date string into a time.Time object
	localTime, err := time.Parse("2006-01-02T15:04:05", str)
	if err != nil {
		localTime, err = time.Parse("2006-01-02", str)
		if err != nil {
			return errors.New("error parsing datetime")
		}
	}
	*t = MyDateString(localTime)

	return nil
}

func (t *MyDateString) StartOfDayUTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "Asia/Yangon"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	// Convert the start of the day local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		0, 0, 0, 0,
		location,
	)

	// Convert the time to UTC
	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}

func (t *MyDateString) EndOfDayUTCTime(timezone string) error {
	// do nothing if the pointer is nil
	if t == nil {
		return nil
	}

	localTime := time.Time(*t)

	if timezone == "" {
		timezone = "Asia/Yangon"
	}

	// Load the location for the given timezone
	location, err := time.LoadLocation(timezone)
	if err != nil {
		fmt.Println("Error loading location:", err)
		return err
	}

	// Convert the end of the day local time to the specified timezone
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		23, 59, 59, 999, // Max nanoseconds
		location,
	)

	// Convert the time to UTC
	utcTime := localTimeInZone.In(time.UTC)
	*t = MyDateString(utcTime)

	return nil
}

// Value implements the driver.Valuer interface
func (t MyDateString) Value() (driver.Value, error) {
	return time.Time(t), nil
}

// Scan implements the sql.Scanner interface
func (t *MyDateString) Scan(value interface{}) error {
	if value == nil {
		*t = MyDateString(time.Time{})
		return nil
	}
	switch v := value.(type) {
	case time.Time:
		*t = MyDateString(v)
	default:
		return fmt.Errorf("cannot convert %T to MyDateString", value)
	}
	return nil
}
