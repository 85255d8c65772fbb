package tools

import (
	"context"
	"strings"

	"github.com/jonwraymond/toolgate/catalog"
)

// EchoName is the registered name of the echo tool.
const EchoName = "echo"

// Echo returns the echo tool. repeat rejects values outside 1..10 rather
// than clamping them.
func Echo() catalog.Definition {
	return catalog.Definition{
		Name:        EchoName,
		Description: "Return the given text unchanged",
		Params: []catalog.Param{
			{Name: "text", Type: catalog.TypeString, Required: true, Description: "Text to return"},
			{
				Name:        "repeat",
				Type:        catalog.TypeInteger,
				Description: "Number of copies, separated by spaces",
				Default:     catalog.DefaultValue(catalog.Int(1)),
				Min:         catalog.Bound(1),
				Max:         catalog.Bound(10),
				OutOfRange:  catalog.Reject,
			},
		},
		Tags:    []string{"read-only"},
		Handler: echo,
	}
}

func echo(_ context.Context, args catalog.Args) (any, error) {
	text := args.String("text")
	n := int(args.Int("repeat"))
	if n <= 1 {
		return text, nil
	}
	return strings.TrimSuffix(strings.Repeat(text+" ", n), " "), nil
}
