package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/twinctl/internal/dtdl"
	"github.com/vk/twinctl/internal/fsutil"
	"github.com/vk/twinctl/internal/registry"
)

const banner = "**********************************************"

// LoadModelsFromDirectory reads every file with the extension, checks it is
// JSON and valid DTDL, then uploads all of them in one batch.
func LoadModelsFromDirectory(ctx context.Context, env *registry.Env, args []string) error {
	out := env.Out
	if len(args) < 1 {
		return registry.Usagef("Please provide a directory path to load models from")
	}
	dir := args[0]
	ext := "json"
	if len(args) > 1 {
		ext = strings.TrimPrefix(args[1], ".")
	}
	recursive := true
	if len(args) > 2 {
		if args[2] == "nosub" {
			recursive = false
		} else {
			out.Error("If you pass more than two parameters, the third parameter must be 'nosub' to skip recursive load")
		}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("error accessing the target directory '%s': %w", dir, err)
	}
	out.Alert("Loading *.%s files in folder '%s'.\nRecursive is set to %t\n", ext, abs, recursive)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return registry.Usagef("Specified directory '%s' does not exist: Exiting...", dir)
	}

	files, err := fsutil.FindFilesByExtension(dir, ext, recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		out.Alert("No matching files found.")
		return nil
	}

	contents := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("could not read files, last file read: %s: %w", f, err)
		}
		contents = append(contents, data)
	}
	out.Ok("Read %d files from specified directory", len(files))

	errJSON := 0
	for i, data := range contents {
		if !json.Valid(data) {
			out.Error("Invalid json found in file %s.", files[i])
			errJSON++
		}
	}
	if errJSON > 0 {
		return fmt.Errorf("found %d JSON parsing error(s)", errJSON)
	}
	out.Ok("Validated JSON for all files - now validating DTDL")

	var docs []json.RawMessage
	for i, data := range contents {
		fileDocs, err := dtdl.Documents(data)
		if err != nil {
			return fmt.Errorf("invalid model file %s: %w", files[i], err)
		}
		docs = append(docs, fileDocs...)
	}
	ifaces, err := dtdl.ParseDocuments(docs)
	if err != nil {
		out.Error("*** Error parsing models")
		var pe *dtdl.ParseError
		if errors.As(err, &pe) {
			out.Error("%s", pe.Msg)
			out.Error("Primary ID: %s", pe.ID)
			out.Error("Property: %s\n", pe.Property)
		}
		return err
	}
	out.Out("")
	out.Ok(banner)
	out.Ok("** Validated all files - Your DTDL is valid **")
	out.Ok(banner)
	out.Out("Found a total of %d entities in the DTDL", len(ifaces))

	if _, err := env.Twins.CreateModels(ctx, docs); err != nil {
		return fmt.Errorf("error uploading models: %w", err)
	}
	out.Ok(banner)
	out.Ok("** Models uploaded successfully **************")
	out.Ok(banner)
	return nil
}
