package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/forever-free1/FlashKV/storage/flash"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Create an erased flash image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("image")
		pages := viper.GetInt("pages")
		pageSize := viper.GetInt("page-size")

		f, err := flash.CreateFile(path, pages, pageSize, flash.WithFileWriteSize(viper.GetInt("write-size")))
		if err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "formatted %s: %d pages x %d bytes\n", path, pages, pageSize)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a value under a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		return s.Insert(cmd.Context(), args[0], []byte(args[1]))
	},
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the newest value of a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		value, found, err := s.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %q not found", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(value))
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <key>",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove a key",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		return s.Remove(cmd.Context(), args[0])
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List all live keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		out := cmd.OutOrStdout()
		return s.Keys(cmd.Context(), func(key string) bool {
			fmt.Fprintln(out, key)
			return true
		})
	},
}

var eraseAllCmd = &cobra.Command{
	Use:   "erase-all",
	Short: "Erase every page of the image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		return s.EraseAll(cmd.Context())
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show page states and usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()

		st, err := s.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if viper.GetBool("json") {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Fprintf(out, "page size: %d  capacity: %d  free pages: %d  open page: %d  generation: %d\n",
			st.PageSize, st.Capacity, st.FreePages, st.OpenPage, st.Generation)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PAGE\tSTATE\tGEN\tITEMS\tUSED")
		for _, p := range st.Pages {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", p.Page, p.StateName, p.Generation, p.Items, p.Used)
		}
		return tw.Flush()
	},
}

func init() {
	key := "pages"
	formatCmd.Flags().Int(key, 16, wrapString("Number of pages in the new image"))

	key = "json"
	infoCmd.Flags().Bool(key, false, wrapString("Print statistics as JSON"))
}
