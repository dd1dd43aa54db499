// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"welfare-recommender/pkg/registry"
)

const defaultPath = "configs/activity-registry.json"

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	diffCmd := flag.NewFlagSet("diff", flag.ExitOnError)

	exportPath := exportCmd.String("path", defaultPath, "Where to write the registry")

	updatePath := updateCmd.String("path", defaultPath, "Path to registry file")
	taskType := updateCmd.String("taskType", "", "Task type to update")
	field := updateCmd.String("field", "", "Field to update (status, version, timeout, retries, description)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", "", "Path to registry file (built-in registry when empty)")
	diffPath := diffCmd.String("path", defaultPath, "Registry file to compare with the built-in registry")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "export":
		_ = exportCmd.Parse(os.Args[2:])
		err = export(*exportPath)
	case "update":
		_ = updateCmd.Parse(os.Args[2:])
		if *taskType == "" || *field == "" || *value == "" {
			fmt.Println("Error: taskType, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		err = update(*updatePath, *taskType, *field, *value)
	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		err = validate(*validatePath)
	case "diff":
		_ = diffCmd.Parse(os.Args[2:])
		err = diff(*diffPath)
	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func export(path string) error {
	reg := registry.Default()
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := reg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %d activities to %s\n", len(reg.Activities), path)
	return nil
}

func update(path, taskType, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	if err := applyUpdate(reg, taskType, field, value); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	if err := reg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Updated %s: %s=%s\n", taskType, field, value)
	return nil
}

func applyUpdate(reg *registry.ActivityRegistry, taskType, field, value string) error {
	a, ok := reg.Find(taskType)
	if !ok {
		return fmt.Errorf("task type %s not found", taskType)
	}
	switch field {
	case "status":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "description":
		a.Description = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return nil
}

func validate(path string) error {
	reg := registry.Default()
	if path != "" {
		var err error
		if reg, err = registry.LoadRegistry(path); err != nil {
			return fmt.Errorf("load registry: %w", err)
		}
	}
	if len(reg.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}
	if errs := reg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Println("  -", e)
		}
		return fmt.Errorf("%d problems found", len(errs))
	}
	fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
	return nil
}

func diff(path string) error {
	file, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	onlyFile, onlyBuiltIn := registry.Diff(file, registry.Default())
	if len(onlyFile) == 0 && len(onlyBuiltIn) == 0 {
		fmt.Println("Registry file matches the built-in task types.")
		return nil
	}
	for _, t := range onlyFile {
		fmt.Println("  only in file:    ", t)
	}
	for _, t := range onlyBuiltIn {
		fmt.Println("  missing in file: ", t)
	}
	return fmt.Errorf("registry file is out of date")
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  export   Write the built-in activity registry to a JSON file
  update   Update a field of one activity in a registry file
  validate Validate a registry file, or the built-in registry
  diff     Compare a registry file with the built-in task types
  help     Show this help message

Examples:
  registry-updater export -path configs/activity-registry.json
  registry-updater update -taskType get-recommendations -field timeout -value 15s
  registry-updater validate
  registry-updater diff -path configs/activity-registry.json`)
}
