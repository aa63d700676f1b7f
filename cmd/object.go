// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/davstore"
	"github.com/LeeDigitalWorks/zapdav/pkg/debug"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// adapterMetrics registers the adapter collectors once per process.
var adapterMetrics = sync.OnceValue(func() *davstore.Metrics {
	return davstore.NewMetrics(debug.Registry())
})

func init() {
	f := rootCmd.PersistentFlags()
	f.String("type", string(types.StorageTypeS3), "Object store type (s3, local, memory). Config: backend.type")
	f.String("endpoint", "", "S3 endpoint URL, e.g. https://<account>.r2.cloudflarestorage.com. Config: backend.endpoint")
	f.String("bucket", "", "Bucket name. Config: backend.bucket")
	f.String("region", "auto", "S3 region. Config: backend.region")
	f.String("access_key", "", "S3 access key id. Config: backend.access_key")
	f.String("secret_key", "", "S3 secret access key. Config: backend.secret_key")
	f.String("path", "", "Root directory for the local store. Config: backend.path")
	f.Bool("path_style", false, "Use path-style S3 addressing. Config: backend.path_style")

	statCmd.Flags().Bool("json", false, "Print properties as JSON")

	catCmd.Flags().Int64("start", 0, "First byte offset to read (inclusive)")
	catCmd.Flags().Int64("end", 0, "Last byte offset to read (inclusive); alone, reads the last N bytes")

	putCmd.Flags().Int64("length", -1, "Content length; required when reading from stdin")
	putCmd.Flags().String("content_type", "", "Content-Type stored with the object")
	putCmd.Flags().StringArray("meta", nil, "Custom metadata as key=value (repeatable)")
	putCmd.Flags().String("max_size", "5GiB", "Refuse uploads larger than this (0 disables)")

	rootCmd.AddCommand(statCmd, lsCmd, catCmd, putCmd, rmCmd, setmetaCmd)
}

// backendConfig resolves the object store configuration from flags,
// environment and the backend section of the config file.
func backendConfig(cmd *cobra.Command) types.BackendConfig {
	fl := NewFlagLoader(cmd, "backend")
	return types.BackendConfig{
		Type:      types.StorageType(fl.String("type")),
		Endpoint:  fl.String("endpoint"),
		Bucket:    fl.String("bucket"),
		Region:    fl.String("region"),
		AccessKey: fl.String("access_key"),
		SecretKey: fl.String("secret_key"),
		Path:      fl.String("path"),
		PathStyle: fl.Bool("path_style"),
	}
}

// openStore builds the adapter for one command invocation. The returned
// function closes the object store.
func openStore(cmd *cobra.Command) (*davstore.Store, func(), error) {
	cfg := backendConfig(cmd)
	be, err := backend.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Type, err)
	}
	logger.Ctx(cmd.Context()).Debug().
		Str("type", string(cfg.Type)).
		Str("bucket", cfg.Bucket).
		Str("path", cfg.Path).
		Msg("object store opened")

	closeFn := func() {
		if err := be.Close(); err != nil {
			logger.Ctx(cmd.Context()).Warn().Err(err).Msg("close object store")
		}
	}
	return davstore.New(be, davstore.WithMetrics(adapterMetrics())), closeFn, nil
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show an object's properties and custom metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}

		p := res.Properties
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Key:\t%s\n", res.Key)
		fmt.Fprintf(tw, "Size:\t%s (%d bytes)\n", utils.FormatSize(p.ContentLength), p.ContentLength)
		fmt.Fprintf(tw, "Content-Type:\t%s\n", p.ContentType)
		if p.ContentLanguage != "" {
			fmt.Fprintf(tw, "Content-Language:\t%s\n", p.ContentLanguage)
		}
		fmt.Fprintf(tw, "ETag:\t%s\n", p.ETag)
		fmt.Fprintf(tw, "Last-Modified:\t%s (%s)\n", p.LastModified.UTC().Format(time.RFC3339), humanize.Time(p.LastModified))
		for _, k := range slices.Sorted(maps.Keys(res.Metadata)) {
			fmt.Fprintf(tw, "Meta %s:\t%s\n", k, res.Metadata[k])
		}
		return tw.Flush()
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List objects under a prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		var prefix string
		if len(args) == 1 {
			prefix = args[0]
		}
		entries, err := store.List(cmd.Context(), prefix)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
		var total int64
		for _, e := range entries {
			total += e.Properties.ContentLength
			fmt.Fprintf(tw, "%s\t%s\t %s\n",
				utils.FormatSize(e.Properties.ContentLength),
				e.Properties.LastModified.UTC().Format(time.DateTime),
				e.Key)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s objects, %s\n", humanize.Comma(int64(len(entries))), utils.FormatSize(total))
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Write an object's content, or a byte range of it, to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		content, err := store.Download(cmd.Context(), args[0], rangeFromFlags(cmd))
		if err != nil {
			return err
		}
		defer content.Body.Close()

		_, err = utils.CopyBuffer(cmd.OutOrStdout(), content.Body)
		return err
	},
}

// rangeFromFlags builds a download range from whichever of --start and
// --end were given.
func rangeFromFlags(cmd *cobra.Command) davstore.Range {
	var rng davstore.Range
	if cmd.Flags().Changed("start") {
		start, _ := cmd.Flags().GetInt64("start")
		rng.Start = &start
	}
	if cmd.Flags().Changed("end") {
		end, _ := cmd.Flags().GetInt64("end")
		rng.End = &end
	}
	return rng
}

var putCmd = &cobra.Command{
	Use:   "put <path> <file|->",
	Short: "Upload a file (or stdin with --length) as the object's content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, length, err := openSource(cmd, args[1])
		if err != nil {
			return err
		}
		defer src.Close()

		rawMax, _ := cmd.Flags().GetString("max_size")
		maxSize, err := utils.ParseSize(rawMax)
		if err != nil {
			return err
		}
		if maxSize > 0 && length > maxSize {
			return fmt.Errorf("%s is %s, larger than --max_size %s", args[1], utils.FormatSize(length), utils.FormatSize(maxSize))
		}

		var opts []davstore.PutOption
		if ct, _ := cmd.Flags().GetString("content_type"); ct != "" {
			opts = append(opts, davstore.WithContentType(ct))
		}
		pairs, _ := cmd.Flags().GetStringArray("meta")
		if len(pairs) > 0 {
			md, err := parseMetadata(pairs)
			if err != nil {
				return err
			}
			opts = append(opts, davstore.WithMetadata(md))
		}

		store, closeFn, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		props, err := store.Put(cmd.Context(), args[0], src, length, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", props.Key, utils.FormatSize(props.ContentLength), props.ETag)
		return nil
	},
}

// openSource opens the upload source and determines its length.
func openSource(cmd *cobra.Command, name string) (io.ReadCloser, int64, error) {
	length, _ := cmd.Flags().GetInt64("length")
	if name == "-" {
		if length < 0 {
			return nil, 0, fmt.Errorf("--length is required when reading from stdin")
		}
		return io.NopCloser(cmd.InOrStdin()), length, nil
	}

	f, err := os.Open(utils.ExpandHome(name))
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is not a regular file", name)
	}
	if length < 0 {
		length = st.Size()
	}
	return f, length, nil
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Delete objects",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		for _, p := range args {
			if err := store.Delete(cmd.Context(), p); err != nil {
				return err
			}
		}
		return nil
	},
}

var setmetaCmd = &cobra.Command{
	Use:   "setmeta <path> [key=value]...",
	Short: "Replace an object's custom metadata",
	Long: `Replace the custom metadata of an object with the given key=value pairs.
Existing custom metadata is discarded; with no pairs, all of it is removed.
The content is rewritten in place by streaming it through the adapter.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		md, err := parseMetadata(args[1:])
		if err != nil {
			return err
		}

		store, closeFn, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		result, err := store.PatchMetadata(cmd.Context(), args[0], md)
		if err != nil {
			return err
		}
		for _, k := range slices.Sorted(maps.Keys(result)) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, result[k])
		}
		return nil
	},
}

// parseMetadata parses key=value pairs. Keys must be non-empty and unique.
func parseMetadata(pairs []string) (map[string]string, error) {
	md := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want key=value", pair)
		}
		if _, dup := md[k]; dup {
			return nil, fmt.Errorf("duplicate metadata key %q", k)
		}
		md[k] = v
	}
	return md, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
