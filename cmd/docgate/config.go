package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tenup/docgate/internal/config"
)

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.Version,
		"site": map[string]any{
			"url":         "https://docs.yourcompany.com",
			"addr":        ":8080",
			"name":        "docs",
			"landingURL":  "https://yourcompany.com",
			"publicPaths": []string{"/img/", "/assets/"},
		},
		"sso": map[string]any{
			"googleClientId":    map[string]string{"$env": "GOOGLE_CLIENT_ID"},
			"proxyURL":          "https://sso.yourcompany.com/wp-admin/admin-ajax.php",
			"sessionTtl":        "168h",
			"verifyTimeout":     config.DefaultVerifyTimeout.String(),
			"enforceSameOrigin": true,
			"allowedDomains":    []string{"yourcompany.com"},
			"retry": map[string]any{
				"maxAttempts":     2,
				"initialInterval": "200ms",
			},
		},
		"content": map[string]any{
			"source": "dir",
			"dir":    "./build",
		},
		"storage": map[string]any{
			"kind":            "firestore",
			"gcpProject":      map[string]string{"$env": "GCP_PROJECT"},
			"collection":      config.DefaultFirestoreCollection,
			"memberRetention": "2160h",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(out io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(out, "Validating: %s\n", path)

	printIssues(out, "Errors", result.Errors)
	printIssues(out, "Warnings", result.Warnings)

	fmt.Fprintln(out)
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		fmt.Fprintln(out, "Result: PASS")
	} else if len(result.Errors) == 0 {
		fmt.Fprintln(out, "Result: FAIL (warnings present)")
	} else {
		fmt.Fprintln(out, "Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func printIssues(out io.Writer, title string, issues []config.ValidationError) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d):\n", title, len(issues))
	for _, issue := range issues {
		if issue.Path != "" {
			fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
		} else {
			fmt.Fprintf(out, "  - %s\n", issue.Message)
		}
	}
}

func validateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file without resolving environment variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-init <path>",
		Short: "Generate a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateDefaultConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", args[0])
			return nil
		},
	}
}
