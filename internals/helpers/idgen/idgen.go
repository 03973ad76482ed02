// Package idgen issues human-facing payment references.
package idgen

import (
	"fmt"
	"hash/fnv"
	"os"

	"github.com/bwmarrin/snowflake"
)

const PaymentPrefix = "PAY"

type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given node (0..1023). Every process
// sharing a database needs a distinct node id.
func New(node int64) (*Generator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &Generator{node: n}, nil
}

// NodeFromHostname derives a node id from the hostname when none is configured.
func NodeFromHostname() int64 {
	host, _ := os.Hostname()
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return int64(h.Sum32() % 1024)
}

// PaymentRef returns e.g. PAY1789403322445209600.
func (g *Generator) PaymentRef() string {
	return PaymentPrefix + g.node.Generate().String()
}
