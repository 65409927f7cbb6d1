package doctor

// groupDefinition describes a check group.
type groupDefinition struct {
	ID          string
	Name        string
	Description string
	CheckIDs    []string
}

// groupDefinitions lists the check groups in display order.
var groupDefinitions = []groupDefinition{
	{
		ID:          GroupProxmox,
		Name:        "Proxmox VE",
		Description: "Required to look up storages and register templates",
		CheckIDs:    []string{IDQm, IDPvesh},
	},
	{
		ID:          GroupCustomize,
		Name:        "Image customization",
		Description: "Required to upload files and run commands inside images",
		CheckIDs:    []string{IDVirtCustomize, IDKVM, IDScratchDir},
	},
	{
		ID:          GroupUnpack,
		Name:        "Unpack tools",
		Description: "Only needed by templates with an unpack command",
		CheckIDs:    []string{IDUnzip, IDXz, IDTar},
	},
}

// GetGroups returns all check groups without results.
func GetGroups() []CheckGroup {
	groups := make([]CheckGroup, 0, len(groupDefinitions))
	for _, def := range groupDefinitions {
		groups = append(groups, CheckGroup{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
		})
	}
	return groups
}

// GetGroupDefinition returns the definition for a specific group.
func GetGroupDefinition(groupID string) (groupDefinition, bool) {
	for _, def := range groupDefinitions {
		if def.ID == groupID {
			return def, true
		}
	}
	return groupDefinition{}, false
}

// GetAllGroupIDs returns all group IDs.
func GetAllGroupIDs() []string {
	ids := make([]string, 0, len(groupDefinitions))
	for _, def := range groupDefinitions {
		ids = append(ids, def.ID)
	}
	return ids
}
