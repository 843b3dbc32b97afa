package chat

import (
	"strings"

	"github.com/google/uuid"
)

const handleSep = "!"

// subject-unsafe characters in node ids
var nodeReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", handleSep, "_")

// NewHandle returns a connection handle "<node>!<uuid>".
func NewHandle(nodeID string) string {
	return nodeReplacer.Replace(nodeID) + handleSep + uuid.NewString()
}

// NodeOf returns the node part of a handle.
func NodeOf(handle string) string {
	node, _, _ := strings.Cut(handle, handleSep)
	return node
}

func groupSubject(prefix, group string) string   { return prefix + ".group." + group }
func handleSubject(prefix, handle string) string { return prefix + ".handle." + handle }
