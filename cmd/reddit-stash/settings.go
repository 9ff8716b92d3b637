package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/renderinc/reddit-stash/internal/storage"
)

var knownSettings = []string{
	storage.SettingSyncServerURL,
	storage.SettingSyncTableName,
	storage.SettingSemanticProfile,
	storage.SettingSimilarityProfile,
	storage.SettingSyncIncludeDeleted,
	storage.SettingAIEndpoints,
	storage.SettingAIAPIKey,
	storage.SettingAIModel,
	storage.SettingAISystemPrompt,
	storage.SettingAIReferer,
	storage.SettingAITitle,
	storage.SettingAIMaxTokens,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and write app settings stored in the database",
	Long: "Settings are plain strings. Known keys:\n  " + strings.Join(knownSettings, "\n  ") +
		"\n\nSetting a key to the empty string removes it.",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		v, err := db.GetSetting(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !isKnownSetting(key) {
			return errors.WithHintf(errors.Newf("unknown setting %q", key), "known settings: %s", strings.Join(knownSettings, ", "))
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.SetSetting(cmd.Context(), key, args[1])
	},
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all stored settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		all, err := db.AllSettings(cmd.Context())
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(all))
		for k := range all {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := cmd.OutOrStdout()
		for _, k := range keys {
			fmt.Fprintf(out, "%s = %s\n", k, maskSecret(k, all[k]))
		}
		return nil
	},
}

func isKnownSetting(key string) bool {
	for _, k := range knownSettings {
		if k == key {
			return true
		}
	}
	return false
}

func maskSecret(key, value string) string {
	if key != storage.SettingAIAPIKey || len(value) <= 4 {
		return value
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Organize posts into folders",
}

var foldersCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.CreateFolder(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created folder %d\n", id)
		return nil
	},
}

var foldersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		folders, err := db.ListFolders(cmd.Context())
		if err != nil {
			return err
		}
		for _, f := range folders {
			fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s\n", f.ID, f.Name)
		}
		return nil
	},
}

func folderMembership(add bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		postID, err := parseID(args[0])
		if err != nil {
			return err
		}
		folderID, err := parseID(args[1])
		if err != nil {
			return errors.Wrap(err, "folder id")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if add {
			return db.AddToFolder(cmd.Context(), postID, folderID)
		}
		return db.RemoveFromFolder(cmd.Context(), postID, folderID)
	}
}

var foldersAddCmd = &cobra.Command{
	Use:   "add <post-id> <folder-id>",
	Short: "Put a post in a folder",
	Args:  cobra.ExactArgs(2),
	RunE:  folderMembership(true),
}

var foldersRemoveCmd = &cobra.Command{
	Use:   "remove <post-id> <folder-id>",
	Short: "Take a post out of a folder",
	Args:  cobra.ExactArgs(2),
	RunE:  folderMembership(false),
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd, settingsListCmd)
	foldersCmd.AddCommand(foldersCreateCmd, foldersListCmd, foldersAddCmd, foldersRemoveCmd)
}
