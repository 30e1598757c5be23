package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"drip-admin-console/internal/client"
	"drip-admin-console/internal/listview"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/storage"

	"github.com/spf13/cobra"
)

// errAlreadyReported marks failures whose message was already printed
var errAlreadyReported = errors.New("already reported")

type appFunc func() *app

func newLoginCmd(current appFunc) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token used for every request",
		RunE: func(cmd *cobra.Command, args []string) error {
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("--token is required")
			}
			a := current()
			if err := a.session.Set(storage.TokenKey, token); err != nil {
				return err
			}
			fmt.Fprintln(a.out, styles.Success.Render("token saved to "+a.cfg.SessionFile))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the admin API")
	return cmd
}

func newLogoutCmd(current appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			if err := a.session.Delete(storage.TokenKey); err != nil {
				return err
			}
			fmt.Fprintln(a.out, styles.Muted.Render("logged out"))
			return nil
		},
	}
}

func newEntitiesCmd(current appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the entities and exports the console knows about",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			fmt.Fprintln(a.out, renderEntities(a.registry.All(), a.registry.Exports()))
			return nil
		},
	}
}

func newListCmd(current appFunc) *cobra.Command {
	var (
		page   int
		items  int
		filter string
	)
	cmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "Show one page of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			sl, err := a.store.Slice(args[0])
			if err != nil {
				return err
			}
			if items <= 0 {
				items = a.cfg.DefaultPageSize
			}

			view := listview.New(sl, items)
			fetchErr := view.Apply(cmd.Context(), listview.Query{Page: page, PageSize: items, Filter: filter})
			if client.IsUnauthorized(fetchErr) {
				return fetchErr
			}

			model := view.Render()
			if fetchErr != nil && model.Error == "" {
				return fetchErr
			}
			fmt.Fprintln(a.out, renderList(model))
			if model.Error != "" {
				return errAlreadyReported
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&items, "items", 0, "page size (default DEFAULT_PAGE_SIZE)")
	cmd.Flags().StringVar(&filter, "filter", "", "entity specific filter value")
	return cmd
}

// payloadFlags are shared by create and update
type payloadFlags struct {
	fields []string
	files  []string
}

func (p *payloadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&p.fields, "field", nil, "field value as key=value; JSON values are decoded")
	cmd.Flags().StringArrayVar(&p.files, "file", nil, "file upload as field=path (sent as multipart)")
}

func (p *payloadFlags) payload() (models.MutationPayload, error) {
	fields, err := parseFields(p.fields)
	if err != nil {
		return models.MutationPayload{}, err
	}
	files, err := readFiles(p.files)
	if err != nil {
		return models.MutationPayload{}, err
	}
	return models.MutationPayload{Fields: fields, Files: files}, nil
}

func newCreateCmd(current appFunc) *cobra.Command {
	var flags payloadFlags
	cmd := &cobra.Command{
		Use:   "create <entity>",
		Short: "Create a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			sl, err := a.store.Slice(args[0])
			if err != nil {
				return err
			}
			payload, err := flags.payload()
			if err != nil {
				return err
			}

			created, err := listview.Submit(cmd.Context(), sl, listview.NewDialog(nil), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, renderRecord("created", created))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newUpdateCmd(current appFunc) *cobra.Command {
	var flags payloadFlags
	cmd := &cobra.Command{
		Use:   "update <entity> <id>",
		Short: "Update a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			sl, err := a.store.Slice(args[0])
			if err != nil {
				return err
			}
			payload, err := flags.payload()
			if err != nil {
				return err
			}

			mode := listview.EditDialog{ID: args[1], Fields: payload.Fields}
			updated, err := listview.Submit(cmd.Context(), sl, mode, payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, renderRecord("updated", updated))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd(current appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity> <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			sl, err := a.store.Slice(args[0])
			if err != nil {
				return err
			}
			if err := sl.Delete(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, styles.Success.Render(fmt.Sprintf("%s %s deleted", sl.Entity().Name, args[1])))
			return nil
		},
	}
}

func newToggleCmd(current appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <entity> <id>",
		Short: "Flip the active status of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			sl, err := a.store.Slice(args[0])
			if err != nil {
				return err
			}
			if !sl.Entity().Toggle {
				return fmt.Errorf("%s has no status toggle", sl.Entity().Name)
			}
			toggled, err := sl.ToggleStatus(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, renderRecord("status updated", toggled))
			return nil
		},
	}
}

func newReorderCmd(current appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <entity> <from> <to>",
		Short: "Move a record from one position to another in the manual order",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid from position %q", args[1])
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid to position %q", args[2])
			}

			a := current()
			controller, err := a.store.Reorder(args[0])
			if err != nil {
				return err
			}
			if _, err := controller.Load(cmd.Context()); err != nil {
				return err
			}

			items, err := controller.Drop(cmd.Context(), from, to)
			if items != nil {
				fmt.Fprintln(a.out, renderOrder(items))
			}
			return err
		},
	}
}

func newExportCmd(current appFunc) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <kind>",
		Short: "Download a spreadsheet export (contacts, emails)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			export, err := a.registry.Export(args[0])
			if err != nil {
				return err
			}
			download, err := a.client.Export(cmd.Context(), export)
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = filepath.Base(download.Filename)
			}
			if err := os.WriteFile(path, download.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write export: %w", err)
			}
			fmt.Fprintln(a.out, styles.Success.Render(fmt.Sprintf("saved %s (%d bytes)", path, len(download.Data))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: name sent by the server)")
	return cmd
}

// parseFields turns key=value pairs into payload fields. Values that parse as
// JSON keep their type; everything else is sent as a string.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", pair)
		}
		fields[key] = decodeValue(value)
	}
	return fields, nil
}

func decodeValue(raw string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	if v == nil {
		return raw
	}
	return v
}

// readFiles loads field=path uploads
func readFiles(args []string) ([]models.BinaryBlob, error) {
	var blobs []models.BinaryBlob
	for _, arg := range args {
		field, path, ok := strings.Cut(arg, "=")
		if !ok || field == "" || path == "" {
			return nil, fmt.Errorf("invalid file %q, expected field=path", arg)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		blobs = append(blobs, models.BinaryBlob{
			Field:       field,
			Filename:    filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}
	return blobs, nil
}
