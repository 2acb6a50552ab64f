package events

import "time"

// Concrete IAM domain event types (C1). Each implements Event and has a
// Codec registered in NewIAMEventRegistry, so producers can append a
// typed event and have it round-trip through outbox storage without
// hand-building a Payload.

type baseEvent struct {
	aggregateID string
	occurredAt  time.Time
}

func (e baseEvent) AggregateID() string   { return e.aggregateID }
func (e baseEvent) OccurredAt() time.Time { return e.occurredAt }

type GroupCreated struct {
	baseEvent
	GroupID  string
	TenantID string
}

func (GroupCreated) EventType() string { return "GroupCreated" }

type GroupMember struct {
	UserID string
	Role   string
}

type GroupDeleted struct {
	baseEvent
	GroupID  string
	TenantID string
	Members  []GroupMember
}

func (GroupDeleted) EventType() string { return "GroupDeleted" }

type MemberAdded struct {
	baseEvent
	GroupID string
	UserID  string
	Role    string
}

func (MemberAdded) EventType() string { return "MemberAdded" }

type MemberRemoved struct {
	baseEvent
	GroupID string
	UserID  string
	Role    string
}

func (MemberRemoved) EventType() string { return "MemberRemoved" }

type MemberRoleChanged struct {
	baseEvent
	GroupID string
	UserID  string
	OldRole string
	NewRole string
}

func (MemberRoleChanged) EventType() string { return "MemberRoleChanged" }

type APIKeyCreated struct {
	baseEvent
	APIKeyID string
	UserID   string
	TenantID string
}

func (APIKeyCreated) EventType() string { return "APIKeyCreated" }

type APIKeyRevoked struct {
	baseEvent
	APIKeyID string
	UserID   string
}

func (APIKeyRevoked) EventType() string { return "APIKeyRevoked" }

type APIKeyDeleted struct {
	baseEvent
	APIKeyID string
	UserID   string
	TenantID string
}

func (APIKeyDeleted) EventType() string { return "APIKeyDeleted" }

type WorkspaceCreated struct {
	baseEvent
	WorkspaceID       string
	TenantID          string
	IsRoot            bool
	ParentWorkspaceID string // empty when IsRoot
}

func (WorkspaceCreated) EventType() string { return "WorkspaceCreated" }

type WorkspaceDeleted struct {
	baseEvent
	WorkspaceID       string
	TenantID          string
	IsRoot            bool
	ParentWorkspaceID string
}

func (WorkspaceDeleted) EventType() string { return "WorkspaceDeleted" }

type WorkspaceMemberAdded struct {
	baseEvent
	WorkspaceID string
	MemberID    string
	MemberType  string // "user" or "group"
	Role        string
}

func (WorkspaceMemberAdded) EventType() string { return "WorkspaceMemberAdded" }

type WorkspaceMemberRemoved struct {
	baseEvent
	WorkspaceID string
	MemberID    string
	MemberType  string
	Role        string
}

func (WorkspaceMemberRemoved) EventType() string { return "WorkspaceMemberRemoved" }

type WorkspaceMemberRoleChanged struct {
	baseEvent
	WorkspaceID string
	MemberID    string
	MemberType  string
	OldRole     string
	NewRole     string
}

func (WorkspaceMemberRoleChanged) EventType() string { return "WorkspaceMemberRoleChanged" }

type TenantMemberAdded struct {
	baseEvent
	TenantID string
	UserID   string
	Role     string
}

func (TenantMemberAdded) EventType() string { return "TenantMemberAdded" }

type TenantMemberRemoved struct {
	baseEvent
	TenantID string
	UserID   string
}

func (TenantMemberRemoved) EventType() string { return "TenantMemberRemoved" }

type TenantDeleted struct {
	baseEvent
	TenantID string
	Members  []GroupMember
}

func (TenantDeleted) EventType() string { return "TenantDeleted" }

func membersToPayload(members []GroupMember) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = map[string]any{"user_id": m.UserID, "role": m.Role}
	}
	return out
}

func membersFromPayload(p Payload) []GroupMember {
	return memberListAsGroupMembers(p["members"])
}

func memberListAsGroupMembers(raw any) []GroupMember {
	ms := memberList(raw)
	out := make([]GroupMember, len(ms))
	for i, m := range ms {
		out[i] = GroupMember{UserID: m.userID, Role: m.role}
	}
	return out
}

// NewIAMEventRegistry builds a Registry with a Codec for every IAM event
// type listed in IAMEventTranslator.SupportedEventTypes.
func NewIAMEventRegistry() *Registry {
	r := NewRegistry()

	r.Register("GroupCreated", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(GroupCreated)
			return Payload{
				"group_id":    ev.GroupID,
				"tenant_id":   ev.TenantID,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			groupID, err := requireString(p, "GroupCreated", "group_id")
			if err != nil {
				return nil, err
			}
			tenantID, err := requireString(p, "GroupCreated", "tenant_id")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "GroupCreated", "occurred_at")
			if err != nil {
				return nil, err
			}
			return GroupCreated{
				baseEvent: baseEvent{aggregateID: groupID, occurredAt: occurredAt},
				GroupID:   groupID, TenantID: tenantID,
			}, nil
		},
	})

	r.Register("GroupDeleted", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(GroupDeleted)
			return Payload{
				"group_id":    ev.GroupID,
				"tenant_id":   ev.TenantID,
				"members":     membersToPayload(ev.Members),
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			groupID, err := requireString(p, "GroupDeleted", "group_id")
			if err != nil {
				return nil, err
			}
			tenantID, err := requireString(p, "GroupDeleted", "tenant_id")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "GroupDeleted", "occurred_at")
			if err != nil {
				return nil, err
			}
			return GroupDeleted{
				baseEvent: baseEvent{aggregateID: groupID, occurredAt: occurredAt},
				GroupID:   groupID, TenantID: tenantID,
				Members: membersFromPayload(p),
			}, nil
		},
	})

	r.Register("MemberAdded", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(MemberAdded)
			return Payload{
				"group_id": ev.GroupID, "user_id": ev.UserID, "role": ev.Role,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			groupID, err := requireString(p, "MemberAdded", "group_id")
			if err != nil {
				return nil, err
			}
			userID, err := requireString(p, "MemberAdded", "user_id")
			if err != nil {
				return nil, err
			}
			role, err := requireString(p, "MemberAdded", "role")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "MemberAdded", "occurred_at")
			if err != nil {
				return nil, err
			}
			return MemberAdded{
				baseEvent: baseEvent{aggregateID: groupID, occurredAt: occurredAt},
				GroupID:   groupID, UserID: userID, Role: role,
			}, nil
		},
	})

	r.Register("MemberRemoved", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(MemberRemoved)
			return Payload{
				"group_id": ev.GroupID, "user_id": ev.UserID, "role": ev.Role,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			groupID, err := requireString(p, "MemberRemoved", "group_id")
			if err != nil {
				return nil, err
			}
			userID, err := requireString(p, "MemberRemoved", "user_id")
			if err != nil {
				return nil, err
			}
			role, err := requireString(p, "MemberRemoved", "role")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "MemberRemoved", "occurred_at")
			if err != nil {
				return nil, err
			}
			return MemberRemoved{
				baseEvent: baseEvent{aggregateID: groupID, occurredAt: occurredAt},
				GroupID:   groupID, UserID: userID, Role: role,
			}, nil
		},
	})

	r.Register("MemberRoleChanged", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(MemberRoleChanged)
			return Payload{
				"group_id": ev.GroupID, "user_id": ev.UserID,
				"old_role": ev.OldRole, "new_role": ev.NewRole,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			groupID, err := requireString(p, "MemberRoleChanged", "group_id")
			if err != nil {
				return nil, err
			}
			userID, err := requireString(p, "MemberRoleChanged", "user_id")
			if err != nil {
				return nil, err
			}
			oldRole, err := requireString(p, "MemberRoleChanged", "old_role")
			if err != nil {
				return nil, err
			}
			newRole, err := requireString(p, "MemberRoleChanged", "new_role")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "MemberRoleChanged", "occurred_at")
			if err != nil {
				return nil, err
			}
			return MemberRoleChanged{
				baseEvent: baseEvent{aggregateID: groupID, occurredAt: occurredAt},
				GroupID:   groupID, UserID: userID, OldRole: oldRole, NewRole: newRole,
			}, nil
		},
	})

	r.Register("APIKeyCreated", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(APIKeyCreated)
			return Payload{
				"api_key_id": ev.APIKeyID, "user_id": ev.UserID, "tenant_id": ev.TenantID,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			keyID, err := requireString(p, "APIKeyCreated", "api_key_id")
			if err != nil {
				return nil, err
			}
			userID, err := requireString(p, "APIKeyCreated", "user_id")
			if err != nil {
				return nil, err
			}
			tenantID, err := requireString(p, "APIKeyCreated", "tenant_id")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "APIKeyCreated", "occurred_at")
			if err != nil {
				return nil, err
			}
			return APIKeyCreated{
				baseEvent: baseEvent{aggregateID: keyID, occurredAt: occurredAt},
				APIKeyID:  keyID, UserID: userID, TenantID: tenantID,
			}, nil
		},
	})

	r.Register("APIKeyRevoked", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(APIKeyRevoked)
			return Payload{
				"api_key_id": ev.APIKeyID, "user_id": ev.UserID,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			keyID, err := requireString(p, "APIKeyRevoked", "api_key_id")
			if err != nil {
				return nil, err
			}
			userID, err := requireString(p, "APIKeyRevoked", "user_id")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "APIKeyRevoked", "occurred_at")
			if err != nil {
				return nil, err
			}
			return APIKeyRevoked{
				baseEvent: baseEvent{aggregateID: keyID, occurredAt: occurredAt},
				APIKeyID:  keyID, UserID: userID,
			}, nil
		},
	})

	r.Register("APIKeyDeleted", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(APIKeyDeleted)
			return Payload{
				"api_key_id": ev.APIKeyID, "user_id": ev.UserID, "tenant_id": ev.TenantID,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			keyID, err := requireString(p, "APIKeyDeleted", "api_key_id")
			if err != nil {
				return nil, err
			}
			userID, err := requireString(p, "APIKeyDeleted", "user_id")
			if err != nil {
				return nil, err
			}
			tenantID, err := requireString(p, "APIKeyDeleted", "tenant_id")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "APIKeyDeleted", "occurred_at")
			if err != nil {
				return nil, err
			}
			return APIKeyDeleted{
				baseEvent: baseEvent{aggregateID: keyID, occurredAt: occurredAt},
				APIKeyID:  keyID, UserID: userID, TenantID: tenantID,
			}, nil
		},
	})

	r.Register("WorkspaceCreated", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(WorkspaceCreated)
			return Payload{
				"workspace_id": ev.WorkspaceID, "tenant_id": ev.TenantID,
				"is_root": ev.IsRoot, "parent_workspace_id": ev.ParentWorkspaceID,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			wsID, err := requireString(p, "WorkspaceCreated", "workspace_id")
			if err != nil {
				return nil, err
			}
			tenantID, err := requireString(p, "WorkspaceCreated", "tenant_id")
			if err != nil {
				return nil, err
			}
			isRoot, _ := p["is_root"].(bool)
			occurredAt, err := requireTime(p, "WorkspaceCreated", "occurred_at")
			if err != nil {
				return nil, err
			}
			return WorkspaceCreated{
				baseEvent: baseEvent{aggregateID: wsID, occurredAt: occurredAt},
				WorkspaceID: wsID, TenantID: tenantID, IsRoot: isRoot,
				ParentWorkspaceID: optionalString(p, "parent_workspace_id"),
			}, nil
		},
	})

	r.Register("WorkspaceDeleted", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(WorkspaceDeleted)
			return Payload{
				"workspace_id": ev.WorkspaceID, "tenant_id": ev.TenantID,
				"is_root": ev.IsRoot, "parent_workspace_id": ev.ParentWorkspaceID,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			wsID, err := requireString(p, "WorkspaceDeleted", "workspace_id")
			if err != nil {
				return nil, err
			}
			tenantID, err := requireString(p, "WorkspaceDeleted", "tenant_id")
			if err != nil {
				return nil, err
			}
			isRoot, _ := p["is_root"].(bool)
			occurredAt, err := requireTime(p, "WorkspaceDeleted", "occurred_at")
			if err != nil {
				return nil, err
			}
			return WorkspaceDeleted{
				baseEvent: baseEvent{aggregateID: wsID, occurredAt: occurredAt},
				WorkspaceID: wsID, TenantID: tenantID, IsRoot: isRoot,
				ParentWorkspaceID: optionalString(p, "parent_workspace_id"),
			}, nil
		},
	})

	r.Register("WorkspaceMemberAdded", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(WorkspaceMemberAdded)
			return Payload{
				"workspace_id": ev.WorkspaceID, "member_id": ev.MemberID,
				"member_type": ev.MemberType, "role": ev.Role,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			wsID, err := requireString(p, "WorkspaceMemberAdded", "workspace_id")
			if err != nil {
				return nil, err
			}
			memberID, err := requireString(p, "WorkspaceMemberAdded", "member_id")
			if err != nil {
				return nil, err
			}
			memberType, err := requireString(p, "WorkspaceMemberAdded", "member_type")
			if err != nil {
				return nil, err
			}
			role, err := requireString(p, "WorkspaceMemberAdded", "role")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "WorkspaceMemberAdded", "occurred_at")
			if err != nil {
				return nil, err
			}
			return WorkspaceMemberAdded{
				baseEvent: baseEvent{aggregateID: wsID, occurredAt: occurredAt},
				WorkspaceID: wsID, MemberID: memberID, MemberType: memberType, Role: role,
			}, nil
		},
	})

	r.Register("WorkspaceMemberRemoved", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(WorkspaceMemberRemoved)
			return Payload{
				"workspace_id": ev.WorkspaceID, "member_id": ev.MemberID,
				"member_type": ev.MemberType, "role": ev.Role,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			wsID, err := requireString(p, "WorkspaceMemberRemoved", "workspace_id")
			if err != nil {
				return nil, err
			}
			memberID, err := requireString(p, "WorkspaceMemberRemoved", "member_id")
			if err != nil {
				return nil, err
			}
			memberType, err := requireString(p, "WorkspaceMemberRemoved", "member_type")
			if err != nil {
				return nil, err
			}
			role, err := requireString(p, "WorkspaceMemberRemoved", "role")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "WorkspaceMemberRemoved", "occurred_at")
			if err != nil {
				return nil, err
			}
			return WorkspaceMemberRemoved{
				baseEvent: baseEvent{aggregateID: wsID, occurredAt: occurredAt},
				WorkspaceID: wsID, MemberID: memberID, MemberType: memberType, Role: role,
			}, nil
		},
	})

	r.Register("WorkspaceMemberRoleChanged", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(WorkspaceMemberRoleChanged)
			return Payload{
				"workspace_id": ev.WorkspaceID, "member_id": ev.MemberID, "member_type": ev.MemberType,
				"old_role": ev.OldRole, "new_role": ev.NewRole,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			wsID, err := requireString(p, "WorkspaceMemberRoleChanged", "workspace_id")
			if err != nil {
				return nil, err
			}
			memberID, err := requireString(p, "WorkspaceMemberRoleChanged", "member_id")
			if err != nil {
				return nil, err
			}
			memberType, err := requireString(p, "WorkspaceMemberRoleChanged", "member_type")
			if err != nil {
				return nil, err
			}
			oldRole, err := requireString(p, "WorkspaceMemberRoleChanged", "old_role")
			if err != nil {
				return nil, err
			}
			newRole, err := requireString(p, "WorkspaceMemberRoleChanged", "new_role")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "WorkspaceMemberRoleChanged", "occurred_at")
			if err != nil {
				return nil, err
			}
			return WorkspaceMemberRoleChanged{
				baseEvent: baseEvent{aggregateID: wsID, occurredAt: occurredAt},
				WorkspaceID: wsID, MemberID: memberID, MemberType: memberType,
				OldRole: oldRole, NewRole: newRole,
			}, nil
		},
	})

	r.Register("TenantMemberAdded", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(TenantMemberAdded)
			return Payload{
				"tenant_id": ev.TenantID, "user_id": ev.UserID, "role": ev.Role,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			tenantID, err := requireString(p, "TenantMemberAdded", "tenant_id")
			if err != nil {
				return nil, err
			}
			userID, err := requireString(p, "TenantMemberAdded", "user_id")
			if err != nil {
				return nil, err
			}
			role, err := requireString(p, "TenantMemberAdded", "role")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "TenantMemberAdded", "occurred_at")
			if err != nil {
				return nil, err
			}
			return TenantMemberAdded{
				baseEvent: baseEvent{aggregateID: tenantID, occurredAt: occurredAt},
				TenantID:  tenantID, UserID: userID, Role: role,
			}, nil
		},
	})

	r.Register("TenantMemberRemoved", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(TenantMemberRemoved)
			return Payload{
				"tenant_id": ev.TenantID, "user_id": ev.UserID,
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			tenantID, err := requireString(p, "TenantMemberRemoved", "tenant_id")
			if err != nil {
				return nil, err
			}
			userID, err := requireString(p, "TenantMemberRemoved", "user_id")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "TenantMemberRemoved", "occurred_at")
			if err != nil {
				return nil, err
			}
			return TenantMemberRemoved{
				baseEvent: baseEvent{aggregateID: tenantID, occurredAt: occurredAt},
				TenantID:  tenantID, UserID: userID,
			}, nil
		},
	})

	r.Register("TenantDeleted", Codec{
		Serialize: func(e Event) (Payload, error) {
			ev := e.(TenantDeleted)
			return Payload{
				"tenant_id":   ev.TenantID,
				"members":     membersToPayload(ev.Members),
				"occurred_at": ev.occurredAt.Format(time.RFC3339),
			}, nil
		},
		Deserialize: func(p Payload) (Event, error) {
			tenantID, err := requireString(p, "TenantDeleted", "tenant_id")
			if err != nil {
				return nil, err
			}
			occurredAt, err := requireTime(p, "TenantDeleted", "occurred_at")
			if err != nil {
				return nil, err
			}
			return TenantDeleted{
				baseEvent: baseEvent{aggregateID: tenantID, occurredAt: occurredAt},
				TenantID:  tenantID,
				Members:   membersFromPayload(p),
			}, nil
		},
	})

	return r
}
