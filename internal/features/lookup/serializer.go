package lookup

// SerializedLookup is the plain, JSON-safe shape of a ForeignKeyLookup. The
// validation worker receives a deep copy of its inputs, so everything crossing
// that boundary must survive an encode/decode round trip: sets become arrays,
// nothing shares references with the caller.
type SerializedLookup struct {
	NameToIDs  map[string][]string `json:"name_to_ids"`
	ValidIDs   []string            `json:"valid_ids"`
	IDsToName  map[string]string   `json:"ids_to_name"`
	NumericIDs bool                `json:"numeric_ids"`
}

// SerializedLookups maps referenced table name to its serialized lookup
type SerializedLookups map[string]SerializedLookup

// Serialize flattens live lookups for transfer to the validation worker
func Serialize(lookups map[string]ForeignKeyLookup) SerializedLookups {
	out := make(SerializedLookups, len(lookups))
	for table, l := range lookups {
		s := SerializedLookup{
			NameToIDs:  make(map[string][]string, len(l.NameToIDs)),
			ValidIDs:   make([]string, 0, len(l.ValidIDs)),
			IDsToName:  make(map[string]string, len(l.IDsToName)),
			NumericIDs: l.NumericIDs,
		}
		for name, ids := range l.NameToIDs {
			s.NameToIDs[name] = append([]string(nil), ids...)
		}
		for id := range l.ValidIDs {
			s.ValidIDs = append(s.ValidIDs, id)
		}
		for id, name := range l.IDsToName {
			s.IDsToName[id] = name
		}
		out[table] = s
	}
	return out
}

// Deserialize reconstructs live lookups on the worker side
func Deserialize(serialized SerializedLookups) map[string]ForeignKeyLookup {
	out := make(map[string]ForeignKeyLookup, len(serialized))
	for table, s := range serialized {
		l := ForeignKeyLookup{
			NameToIDs:  make(map[string][]string, len(s.NameToIDs)),
			ValidIDs:   make(map[string]struct{}, len(s.ValidIDs)),
			IDsToName:  make(map[string]string, len(s.IDsToName)),
			NumericIDs: s.NumericIDs,
		}
		for name, ids := range s.NameToIDs {
			l.NameToIDs[name] = append([]string(nil), ids...)
		}
		for _, id := range s.ValidIDs {
			l.ValidIDs[id] = struct{}{}
		}
		for id, name := range s.IDsToName {
			l.IDsToName[id] = name
		}
		out[table] = l
	}
	return out
}
