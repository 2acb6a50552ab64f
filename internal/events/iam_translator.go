package events

import (
	"github.com/openshift-hyperfleet/kartograph/internal/kartoerr"
	"github.com/openshift-hyperfleet/kartograph/internal/policy"
)

// Resource type and relation name constants, mirroring the policy
// schema's resource/relation vocabulary (spec §4.3).
const (
	resGroup     = "group"
	resTenant    = "tenant"
	resUser      = "user"
	resAPIKey    = "api_key"
	resWorkspace = "workspace"

	relTenant        = "tenant"
	relOwner         = "owner"
	relRootWorkspace = "root_workspace"
	relParent        = "parent"
	relAdmin         = "admin"
	relMember        = "member"
)

// IAMEventTranslator is the C3 translator for every IAM bounded-context
// event. Each rule below is grounded in the representative-rules table
// (spec §4.3) and pinned by the translator test suite.
type IAMEventTranslator struct{}

// NewIAMEventTranslator returns a stateless IAM translator.
func NewIAMEventTranslator() *IAMEventTranslator { return &IAMEventTranslator{} }

func (t *IAMEventTranslator) SupportedEventTypes() map[string]struct{} {
	types := []string{
		"GroupCreated", "GroupDeleted",
		"MemberAdded", "MemberRemoved", "MemberRoleChanged",
		"APIKeyCreated", "APIKeyRevoked", "APIKeyDeleted",
		"WorkspaceCreated", "WorkspaceDeleted",
		"WorkspaceMemberAdded", "WorkspaceMemberRemoved", "WorkspaceMemberRoleChanged",
		"TenantMemberAdded", "TenantMemberRemoved", "TenantDeleted",
	}
	out := make(map[string]struct{}, len(types))
	for _, tp := range types {
		out[tp] = struct{}{}
	}
	return out
}

func (t *IAMEventTranslator) Translate(eventType string, p Payload) ([]policy.Operation, error) {
	switch eventType {
	case "GroupCreated":
		return t.groupCreated(p)
	case "GroupDeleted":
		return t.groupDeleted(p)
	case "MemberAdded":
		return t.memberAdded(p)
	case "MemberRemoved":
		return t.memberRemoved(p)
	case "MemberRoleChanged":
		return t.memberRoleChanged(p)
	case "APIKeyCreated":
		return t.apiKeyCreated(p)
	case "APIKeyRevoked":
		return nil, nil // audit trail retained; see APIKeyRevoked in spec §4.3
	case "APIKeyDeleted":
		return t.apiKeyDeleted(p)
	case "WorkspaceCreated":
		return t.workspaceCreated(p)
	case "WorkspaceDeleted":
		return t.workspaceDeleted(p)
	case "WorkspaceMemberAdded":
		return t.workspaceMemberAdded(p)
	case "WorkspaceMemberRemoved":
		return t.workspaceMemberRemoved(p)
	case "WorkspaceMemberRoleChanged":
		return t.workspaceMemberRoleChanged(p)
	case "TenantMemberAdded":
		return t.tenantMemberAdded(p)
	case "TenantMemberRemoved":
		return t.tenantMemberRemoved(p)
	case "TenantDeleted":
		return t.tenantDeleted(p)
	default:
		return nil, &kartoerr.UnknownEventKindError{EventType: eventType}
	}
}

func rel(resType, id string) policy.Relation { return policy.Relation{Type: resType, ID: id} }
func subj(resType, id string) policy.Subject { return policy.Subject{Relation: rel(resType, id)} }

// groupSubject returns the #member-indirected subject when the group
// acts as a subject of another relation (spec §4.3: "when the member is
// a group, the subject is group:<id>#member, not group:<id>").
func groupSubject(id string) policy.Subject {
	return policy.Subject{Relation: rel(resGroup, id), SubRelation: relMember}
}

func (t *IAMEventTranslator) groupCreated(p Payload) ([]policy.Operation, error) {
	groupID, err := requireString(p, "GroupCreated", "group_id")
	if err != nil {
		return nil, err
	}
	tenantID, err := requireString(p, "GroupCreated", "tenant_id")
	if err != nil {
		return nil, err
	}
	return []policy.Operation{
		policy.Write(rel(resGroup, groupID), relTenant, subj(resTenant, tenantID)),
	}, nil
}

func (t *IAMEventTranslator) groupDeleted(p Payload) ([]policy.Operation, error) {
	groupID, err := requireString(p, "GroupDeleted", "group_id")
	if err != nil {
		return nil, err
	}
	tenantID, err := requireString(p, "GroupDeleted", "tenant_id")
	if err != nil {
		return nil, err
	}
	ops := []policy.Operation{
		policy.Delete(rel(resGroup, groupID), relTenant, subj(resTenant, tenantID)),
	}
	for _, m := range memberList(p["members"]) {
		ops = append(ops, policy.Delete(rel(resGroup, groupID), m.role, subj(resUser, m.userID)))
	}
	return ops, nil
}

func (t *IAMEventTranslator) memberAdded(p Payload) ([]policy.Operation, error) {
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
	return []policy.Operation{
		policy.Write(rel(resGroup, groupID), role, subj(resUser, userID)),
	}, nil
}

func (t *IAMEventTranslator) memberRemoved(p Payload) ([]policy.Operation, error) {
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
	return []policy.Operation{
		policy.Delete(rel(resGroup, groupID), role, subj(resUser, userID)),
	}, nil
}

func (t *IAMEventTranslator) memberRoleChanged(p Payload) ([]policy.Operation, error) {
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
	return []policy.Operation{
		policy.Delete(rel(resGroup, groupID), oldRole, subj(resUser, userID)),
		policy.Write(rel(resGroup, groupID), newRole, subj(resUser, userID)),
	}, nil
}

func (t *IAMEventTranslator) apiKeyCreated(p Payload) ([]policy.Operation, error) {
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
	return []policy.Operation{
		policy.Write(rel(resAPIKey, keyID), relOwner, subj(resUser, userID)),
		policy.Write(rel(resAPIKey, keyID), relTenant, subj(resTenant, tenantID)),
	}, nil
}

func (t *IAMEventTranslator) apiKeyDeleted(p Payload) ([]policy.Operation, error) {
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
	return []policy.Operation{
		policy.Delete(rel(resAPIKey, keyID), relOwner, subj(resUser, userID)),
		policy.Delete(rel(resAPIKey, keyID), relTenant, subj(resTenant, tenantID)),
	}, nil
}

func (t *IAMEventTranslator) workspaceCreated(p Payload) ([]policy.Operation, error) {
	workspaceID, err := requireString(p, "WorkspaceCreated", "workspace_id")
	if err != nil {
		return nil, err
	}
	tenantID, err := requireString(p, "WorkspaceCreated", "tenant_id")
	if err != nil {
		return nil, err
	}
	isRoot, _ := p["is_root"].(bool)

	ops := []policy.Operation{
		policy.Write(rel(resWorkspace, workspaceID), relTenant, subj(resTenant, tenantID)),
	}
	if isRoot {
		ops = append(ops, policy.Write(rel(resTenant, tenantID), relRootWorkspace, subj(resWorkspace, workspaceID)))
		return ops, nil
	}

	parentID, err := requireString(p, "WorkspaceCreated", "parent_workspace_id")
	if err != nil {
		return nil, err
	}
	ops = append(ops, policy.Write(rel(resWorkspace, workspaceID), relParent, subj(resWorkspace, parentID)))
	return ops, nil
}

func (t *IAMEventTranslator) workspaceDeleted(p Payload) ([]policy.Operation, error) {
	workspaceID, err := requireString(p, "WorkspaceDeleted", "workspace_id")
	if err != nil {
		return nil, err
	}
	tenantID, err := requireString(p, "WorkspaceDeleted", "tenant_id")
	if err != nil {
		return nil, err
	}
	isRoot, _ := p["is_root"].(bool)

	ops := []policy.Operation{
		policy.Delete(rel(resWorkspace, workspaceID), relTenant, subj(resTenant, tenantID)),
	}
	if isRoot {
		ops = append(ops, policy.Delete(rel(resTenant, tenantID), relRootWorkspace, subj(resWorkspace, workspaceID)))
		return ops, nil
	}

	parentID, err := requireString(p, "WorkspaceDeleted", "parent_workspace_id")
	if err != nil {
		return nil, err
	}
	ops = append(ops, policy.Delete(rel(resWorkspace, workspaceID), relParent, subj(resWorkspace, parentID)))
	return ops, nil
}

func (t *IAMEventTranslator) workspaceMemberAdded(p Payload) ([]policy.Operation, error) {
	workspaceID, err := requireString(p, "WorkspaceMemberAdded", "workspace_id")
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
	return []policy.Operation{
		policy.Write(rel(resWorkspace, workspaceID), role, memberSubject(memberType, memberID)),
	}, nil
}

func (t *IAMEventTranslator) workspaceMemberRemoved(p Payload) ([]policy.Operation, error) {
	workspaceID, err := requireString(p, "WorkspaceMemberRemoved", "workspace_id")
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
	return []policy.Operation{
		policy.Delete(rel(resWorkspace, workspaceID), role, memberSubject(memberType, memberID)),
	}, nil
}

func (t *IAMEventTranslator) workspaceMemberRoleChanged(p Payload) ([]policy.Operation, error) {
	workspaceID, err := requireString(p, "WorkspaceMemberRoleChanged", "workspace_id")
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
	subject := memberSubject(memberType, memberID)
	return []policy.Operation{
		policy.Delete(rel(resWorkspace, workspaceID), oldRole, subject),
		policy.Write(rel(resWorkspace, workspaceID), newRole, subject),
	}, nil
}

func (t *IAMEventTranslator) tenantMemberAdded(p Payload) ([]policy.Operation, error) {
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
	return []policy.Operation{
		policy.Write(rel(resTenant, tenantID), role, subj(resUser, userID)),
	}, nil
}

func (t *IAMEventTranslator) tenantMemberRemoved(p Payload) ([]policy.Operation, error) {
	tenantID, err := requireString(p, "TenantMemberRemoved", "tenant_id")
	if err != nil {
		return nil, err
	}
	userID, err := requireString(p, "TenantMemberRemoved", "user_id")
	if err != nil {
		return nil, err
	}
	// The event does not carry the user's prior role, so both possible
	// tenant role relations are deleted unconditionally (spec §4.3).
	return []policy.Operation{
		policy.Delete(rel(resTenant, tenantID), relAdmin, subj(resUser, userID)),
		policy.Delete(rel(resTenant, tenantID), relMember, subj(resUser, userID)),
	}, nil
}

func (t *IAMEventTranslator) tenantDeleted(p Payload) ([]policy.Operation, error) {
	tenantID, err := requireString(p, "TenantDeleted", "tenant_id")
	if err != nil {
		return nil, err
	}
	ops := []policy.Operation{
		policy.DeleteByFilter(policy.RelationshipFilter{
			ResourceType: resTenant,
			ResourceID:   tenantID,
			Relation:     relRootWorkspace,
		}),
	}
	for _, m := range memberList(p["members"]) {
		ops = append(ops, policy.Delete(rel(resTenant, tenantID), m.role, subj(resUser, m.userID)))
	}
	return ops, nil
}

// memberSubject builds the subject for a workspace member, applying the
// group #member indirection rule when the member is a group.
func memberSubject(memberType, memberID string) policy.Subject {
	if memberType == resGroup {
		return groupSubject(memberID)
	}
	return subj(resUser, memberID)
}

type priorMember struct {
	userID string
	role   string
}

// memberList normalizes the "members" payload field (a []any of
// map[string]any{"user_id":..., "role":...}) into a typed slice,
// skipping any entry that does not have both fields as strings.
func memberList(raw any) []priorMember {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]priorMember, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		userID, _ := m["user_id"].(string)
		role, _ := m["role"].(string)
		if userID == "" || role == "" {
			continue
		}
		out = append(out, priorMember{userID: userID, role: role})
	}
	return out
}
