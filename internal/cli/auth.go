package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dl-alexandre/memora/internal/auth"
	"github.com/dl-alexandre/memora/internal/config"
	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage the bearer token used against the metadata service",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a bearer token",
	Long: `Store a bearer token for the current profile. The token is read from
--token, or from stdin when --token is "-".`,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long:  "Delete stored credentials for the current or specified profile",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Display current authentication status and credential information",
	RunE:  runAuthStatus,
}

var authProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List credential profiles",
	Long:  "Display all stored credential profiles",
	RunE:  runAuthProfiles,
}

var (
	authToken     string
	authServerURL string
	authExpiresIn time.Duration
	authPlainFile bool
)

func init() {
	authLoginCmd.Flags().StringVar(&authToken, "token", "", `Bearer token, or "-" to read it from stdin (required)`)
	authLoginCmd.Flags().StringVar(&authServerURL, "server-url", "", "Metadata service URL to use with this profile")
	authLoginCmd.Flags().DurationVar(&authExpiresIn, "expires-in", 0, "Treat the token as expired after this long")
	authLoginCmd.Flags().BoolVar(&authPlainFile, "plain-file", false, "Store the token unencrypted (development only)")
	_ = authLoginCmd.MarkFlagRequired("token")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authProfilesCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	out := newOutput()

	token := authToken
	if token == "-" {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 64*1024))
		if err != nil {
			return writeError(out, "auth.login", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
				"failed to read token from stdin").Build(), err))
		}
		token = strings.TrimSpace(string(data))
	}

	mgr := auth.NewManagerWithOptions(getConfigDir(), auth.ManagerOptions{ForcePlainFile: authPlainFile})

	// Display storage warning if any
	if warning := mgr.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}

	creds := &types.Credentials{
		AccessToken: token,
		ServerURL:   authServerURL,
	}
	if authExpiresIn > 0 {
		creds.ExpiryDate = time.Now().Add(authExpiresIn)
	}
	if err := mgr.SaveCredentials(globalFlags.Profile, creds); err != nil {
		return writeError(out, "auth.login", err)
	}

	out.Log("Token stored for profile: %s", globalFlags.Profile)
	result := map[string]interface{}{
		"profile":        globalFlags.Profile,
		"status":         "logged_in",
		"storageBackend": mgr.GetStorageBackend(),
	}
	if !creds.ExpiryDate.IsZero() {
		result["expiry"] = creds.ExpiryDate.Format(time.RFC3339)
	}
	return out.WriteSuccess("auth.login", result)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	out := newOutput()
	mgr := auth.NewManager(getConfigDir())

	if err := mgr.DeleteCredentials(globalFlags.Profile); err != nil {
		return writeError(out, "auth.logout", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("No credentials found for profile '%s'", globalFlags.Profile)).Build(), err))
	}

	out.Log("Credentials removed for profile: %s", globalFlags.Profile)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"profile": globalFlags.Profile,
		"status":  "logged_out",
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := newOutput()
	mgr := auth.NewManager(getConfigDir())

	// Show storage backend info
	if warning := mgr.GetStorageWarning(); warning != "" && globalFlags.Verbose {
		out.Log("%s", warning)
	}

	status := map[string]interface{}{
		"profile":        globalFlags.Profile,
		"storageBackend": mgr.GetStorageBackend(),
		"envOverride":    os.Getenv(auth.TokenEnvVar) != "",
	}

	creds, err := mgr.LoadCredentials(globalFlags.Profile)
	if err != nil {
		status["authenticated"] = false
		if !errors.Is(err, auth.ErrNoCredentials) {
			status["error"] = err.Error()
		}
		return out.WriteSuccess("auth.status", status)
	}

	expired := creds.Expired(time.Now())
	status["authenticated"] = !expired
	status["expired"] = expired
	if !creds.CreatedAt.IsZero() {
		status["created"] = creds.CreatedAt.Format(time.RFC3339)
	}
	if !creds.ExpiryDate.IsZero() {
		status["expiry"] = creds.ExpiryDate.Format(time.RFC3339)
	}
	if creds.ServerURL != "" {
		status["serverURL"] = creds.ServerURL
	}
	return out.WriteSuccess("auth.status", status)
}

func runAuthProfiles(cmd *cobra.Command, args []string) error {
	out := newOutput()
	mgr := auth.NewManager(getConfigDir())

	profiles, err := mgr.ListProfiles()
	if err != nil {
		return writeError(out, "auth.profiles", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to list profiles: %v", err)).Build(), err))
	}

	now := time.Now()
	details := make([]map[string]interface{}, 0, len(profiles))
	for _, p := range profiles {
		detail := map[string]interface{}{
			"profile": p.Profile,
		}
		if p.ServerURL != "" {
			detail["serverUrl"] = p.ServerURL
		}
		if p.ExpiryDate != "" {
			detail["expiry"] = p.ExpiryDate
		}
		expiry, err := time.Parse(time.RFC3339, p.ExpiryDate)
		detail["authenticated"] = p.ExpiryDate == "" || (err == nil && now.Before(expiry))
		if p.Profile == globalFlags.Profile {
			detail["active"] = true
		}
		details = append(details, detail)
	}

	return out.WriteSuccess("auth.profiles", map[string]interface{}{
		"profiles":       details,
		"storageBackend": mgr.GetStorageBackend(),
	})
}

func getConfigDir() string {
	dir, err := config.GetConfigDir()
	if err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "memora")
}
