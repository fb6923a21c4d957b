package types

// Standard log file names within a root. Each is an append-only JSONL
// file owned by exactly one party.
const (
	SubjectsLog    = "configs/subjects.jsonl"     // blinder
	AssignmentsLog = "configs/assignments.jsonl"  // blinder
	RegistryLog    = "labels/registry.jsonl"      // blinder
	ReceiptsLog    = "receipts/receipts.jsonl"    // experimenter
	ProvenanceLog  = "provenance/links.jsonl"     // experimenter
	AuditLog       = "audit/actions.jsonl"        // both (one per root)
	AuditMirror    = "audit/actions.log"          // human-readable mirror
)
