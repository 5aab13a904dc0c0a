package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/fa15bridge/internal/device"
	"github.com/srg/fa15bridge/internal/frame"
	"github.com/srg/fa15bridge/internal/scoring"
)

// decodeCmd decodes one characteristic payload offline
var decodeCmd = &cobra.Command{
	Use:   "decode <characteristic> <hex>",
	Short: "Decode a characteristic payload",
	Long: `Decode one FA-15 characteristic payload without a device and show the display text,
the state update and the frame the bridge would send afterwards.

The characteristic is a name (time, leftScore, lamp, ...) or a UUID. The payload is hex;
spaces and colons are ignored.`,
	Example: `  fa15bridge decode time "00 2d 01 04"
  fa15bridge decode lamp 05:05 --state FF070C2D010402000147
  fa15bridge decode leftScore 0c --score-encoding bcd --format json`,
	Args: cobra.ExactArgs(2),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().String("score-encoding", "raw", "Score byte encoding (raw, bcd)")
	decodeCmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
	decodeCmd.Flags().String("state", "", "Frame (hex) holding the state the update is applied to")
}

type decodeOutput struct {
	Kind   scoring.Kind
	Result scoring.Result
	State  scoring.DeviceState
	Frame  frame.Frame
}

func runDecode(cmd *cobra.Command, args []string) error {
	kind, err := resolveCharacteristic(args[0])
	if err != nil {
		return err
	}

	payload, err := parseHexBytes(args[1])
	if err != nil {
		return fmt.Errorf("invalid payload %q: %w", args[1], err)
	}

	encName, _ := cmd.Flags().GetString("score-encoding")
	enc, err := scoring.ParseScoreEncoding(encName)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", format)
	}

	var base scoring.DeviceState
	if s, _ := cmd.Flags().GetString("state"); s != "" {
		f, err := frame.ParseHex(s)
		if err != nil {
			return fmt.Errorf("invalid --state frame: %w", err)
		}
		base = f.State()
	}

	cmd.SilenceUsage = true

	result, err := scoring.NewDecoder(enc).Decode(kind, payload)
	if err != nil {
		return err
	}

	state := base.Apply(result.Update)
	out := decodeOutput{
		Kind:   kind,
		Result: result,
		State:  state,
		Frame:  frame.Encode(state),
	}

	if format == "json" {
		return writeDecodeJSON(cmd.OutOrStdout(), out)
	}
	return writeDecodeText(cmd.OutOrStdout(), out)
}

func writeDecodeText(w io.Writer, out decodeOutput) error {
	_, err := fmt.Fprintf(w, "Characteristic: %s [%s] (%s)\n%s\nUpdate: %s\nState: %s\nFrame: %s\n",
		out.Kind, device.ShortenUUID(device.NormalizeUUID(out.Kind.UUID())), out.Kind.UUID(), out.Result.Display, out.Result.Update, out.State, out.Frame.Spaced())
	return err
}

func writeDecodeJSON(w io.Writer, out decodeOutput) error {
	doc := orderedmap.New[string, any]()
	doc.Set("characteristic", out.Kind.String())
	doc.Set("uuid", out.Kind.UUID())
	doc.Set("short_uuid", device.ShortenUUID(device.NormalizeUUID(out.Kind.UUID())))
	doc.Set("display", out.Result.Display)
	doc.Set("update", out.Result.Update.String())
	doc.Set("state", out.State.Fields())
	doc.Set("frame", out.Frame.String())

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// resolveCharacteristic accepts a vocabulary name or any spelling of a characteristic UUID.
func resolveCharacteristic(arg string) (scoring.Kind, error) {
	if kind, ok := scoring.KindForName(arg); ok {
		return kind, nil
	}
	uuids, err := device.ValidateUUID(arg)
	if err != nil {
		return scoring.KindUnknown, fmt.Errorf("unknown characteristic %q: not a characteristic name or UUID", arg)
	}
	kind, ok := scoring.KindForUUID(uuids[0])
	if !ok {
		return scoring.KindUnknown, fmt.Errorf("unknown characteristic %q: %s is not an FA-15 characteristic", arg, device.ShortenUUID(uuids[0]))
	}
	return kind, nil
}

// parseHexBytes accepts "0a0b", "0a 0b", "0a:0b" and an optional 0x prefix.
func parseHexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	return hex.DecodeString(s)
}
