package validation

import (
	"fmt"
	"regexp"
)

// TableNamePattern определяет допустимый формат имени таблицы
// Только строчные латинские буквы, цифры и нижнее подчеркивание, начинается с буквы
var TableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// RecordIDPattern определяет допустимый формат local_id / server_id
var RecordIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

const (
	// MaxTableNameLen максимальная длина имени таблицы
	MaxTableNameLen = 64
	// MaxRecordIDLen максимальная длина идентификатора записи
	MaxRecordIDLen = 128
)

// TableSet reports whether a table is registered.
type TableSet interface {
	Has(name string) bool
}

// ValidateTableName проверяет формат имени таблицы и, если задан реестр,
// что таблица в нем зарегистрирована
func ValidateTableName(name string, tables TableSet) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}

	if len(name) > MaxTableNameLen {
		return fmt.Errorf("table name must not exceed %d characters", MaxTableNameLen)
	}

	if !TableNamePattern.MatchString(name) {
		return fmt.Errorf("table name can only contain lowercase letters (a-z), numbers (0-9), and underscores (_)")
	}

	if tables != nil && !tables.Has(name) {
		return fmt.Errorf("unknown table %q", name)
	}

	return nil
}

// ValidateRecordID проверяет идентификатор записи
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	if len(id) > MaxRecordIDLen {
		return fmt.Errorf("record id must not exceed %d characters", MaxRecordIDLen)
	}

	if !RecordIDPattern.MatchString(id) {
		return fmt.Errorf("record id can only contain letters, numbers, and the characters _ . : -")
	}

	return nil
}
