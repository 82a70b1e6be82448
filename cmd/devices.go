package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/dongled/internal/devices"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long: `Lists external and built-in video and audio capture devices together with ` +
			`the capture permission this user has for each media kind.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			listing, err := listDevices(devices.NewRegistry())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(listing)
			}
			return writeDeviceTable(os.Stdout, listing)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

type mediaListing struct {
	Media      devices.MediaKind  `json:"media"`
	Permission devices.AuthStatus `json:"permission"`
	Devices    []devices.Handle   `json:"devices"`
}

func listDevices(r devices.Registry) ([]mediaListing, error) {
	var out []mediaListing
	for _, media := range []devices.MediaKind{devices.MediaVideo, devices.MediaAudio} {
		l := mediaListing{Media: media, Permission: r.AuthorizationStatus(media), Devices: []devices.Handle{}}
		for _, conn := range []devices.ConnectionKind{devices.ConnectionExternal, devices.ConnectionBuiltin} {
			handles, err := r.Enumerate(media, conn)
			if err != nil {
				return nil, fmt.Errorf("failed to enumerate %s %s devices: %w", conn, media, err)
			}
			l.Devices = append(l.Devices, handles...)
		}
		out = append(out, l)
	}
	return out, nil
}

func writeDeviceTable(w io.Writer, listing []mediaListing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, l := range listing {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s (permission: %s)\n", l.Media, l.Permission)
		if len(l.Devices) == 0 {
			fmt.Fprintln(tw, "  none")
			continue
		}
		fmt.Fprintln(tw, "  CONNECTION\tNAME\tPATH\tFORMAT\tUNIQUE ID")
		for _, h := range l.Devices {
			format := "-"
			if h.Format.SampleRate > 0 {
				format = fmt.Sprintf("%dch %dHz", h.Format.NumChannels, h.Format.SampleRate)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", h.Connection, h.Name, h.Path, format, h.UniqueID)
		}
	}
	return tw.Flush()
}
