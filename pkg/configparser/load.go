package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var ErrNoFilePath = errors.New("no file path provided")

// LoadYamlFile reads a YAML file and loads variables into the environment
func LoadYamlFile(filepath string) error {
	if filepath == "" {
		return ErrNoFilePath
	}

	file, err := os.Open(filepath)
	if err != nil {
		return fmt.Errorf("could not open YAML file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	prefixStack := []string{}
	previousIndent := 0

	for scanner.Scan() {
		line := scanner.Text()

		// Skip empty lines and comments
		trimmedLine := strings.TrimSpace(line)
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, "#") {
			continue
		}

		// Calculate indentation (count leading spaces)
		indent := 0
		for _, ch := range line {
			if ch != ' ' {
				break
			}
			indent++
		}

		// Update prefix stack based on indentation changes
		if indent < previousIndent {
			// Pop elements from stack until we reach the correct level
			levelsToPop := (previousIndent - indent) / 2
			for i := 0; i < levelsToPop && len(prefixStack) > 0; i++ {
				prefixStack = prefixStack[:len(prefixStack)-1]
			}
		}
		previousIndent = indent

		// Remove indentation from line
		content := strings.TrimSpace(line)

		// Check if it's a section (ends with colon but not a key-value pair)
		if strings.HasSuffix(content, ":") && !strings.Contains(content, ": ") {
			// This is a new section
			sectionName := strings.TrimSuffix(content, ":")
			prefixStack = append(prefixStack, sectionName)
			continue
		}

		// Parse key-value pair
		parts := strings.SplitN(content, ":", 2)
		if len(parts) != 2 {
			continue // Skip malformed lines
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Handle empty values (just "key:")
		if value == "" {
			continue // Skip empty values, they don't represent environment variables
		}

		// Remove quotes if present
		value = strings.Trim(value, `"'`)

		// Handle environment variable substitution syntax: ${VAR:-default}
		if strings.HasPrefix(value, "${") && strings.Contains(value, ":-") && strings.HasSuffix(value, "}") {
			// Extract the variable name and default value
			inner := value[2 : len(value)-1] // Remove ${ and }
			subParts := strings.SplitN(inner, ":-", 2)
			if len(subParts) == 2 {
				envVarName := strings.TrimSpace(subParts[0])
				defaultValue := strings.TrimSpace(subParts[1])

				// Check if environment variable is already set
				if envValue := os.Getenv(envVarName); envValue != "" {
					value = envValue
				} else {
					value = defaultValue
				}
			}
		}

		// Build the full env var name with prefixes
		fullKey := strings.ToUpper(key)
		if len(prefixStack) > 0 {
			fullKey = strings.ToUpper(strings.Join(append(prefixStack, key), "_"))
		}

		// Set the environment variable only if it's not already set
		if os.Getenv(fullKey) == "" {
			if err := os.Setenv(fullKey, value); err != nil {
				return fmt.Errorf("could not set env var %s: %w", fullKey, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading YAML file: %w", err)
	}

	return nil
}

// LoadAndParseYaml loads filepath's keys into the environment (LoadYamlFile)
// and then binds cfg's fields from the environment using their `env` and
// `default` struct tags. cfg must be a non-nil pointer to a struct; nested
// structs are walked recursively. Supported field kinds: string, the sized
// int/uint kinds, bool, float64, and time.Duration.
func LoadAndParseYaml(filepath string, cfg interface{}) error {
	if filepath != "" {
		if err := LoadYamlFile(filepath); err != nil {
			return err
		}
	}
	return bindEnv(reflect.ValueOf(cfg))
}

func bindEnv(v reflect.Value) error {
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("configparser: cfg must be a non-nil pointer, got %s", v.Kind())
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("configparser: cfg must point to a struct, got %s", v.Kind())
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := bindEnv(fv.Addr()); err != nil {
				return err
			}
			continue
		}

		envKey, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}

		raw, present := os.LookupEnv(envKey)
		if !present || raw == "" {
			raw, ok = field.Tag.Lookup("default")
			if !ok {
				continue
			}
		}
		if raw == "" {
			continue
		}

		if err := setFieldValue(fv, raw); err != nil {
			return fmt.Errorf("configparser: field %s: %w", field.Name, err)
		}
	}
	return nil
}

func setFieldValue(fv reflect.Value, raw string) error {
	if fv.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}
	return nil
}
