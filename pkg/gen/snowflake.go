package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen", fx.Provide(NewNode))

// NewNode provides the process-wide snowflake node. Node id 1 is fine for
// a single-writer deployment.
func NewNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
