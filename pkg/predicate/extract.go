package predicate

// Dimensions walks the tree and returns the multiset of dimension names
// referenced by Var nodes, duplicates included (spec §4.E: the priority
// calculator sums over every reference, not the distinct set).
func Dimensions(n Node) []string {
	var out []string
	collectDimensions(n, &out)
	return out
}

func collectDimensions(n Node, out *[]string) {
	switch n.Kind {
	case KindVar:
		*out = append(*out, n.Var)
	case KindOp:
		for _, arg := range n.Args {
			collectDimensions(arg, out)
		}
	case KindLiteral:
		// literal arrays are opaque data, never descended into (see Parse).
	}
}
