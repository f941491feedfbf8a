package menu

import (
	"context"

	"github.com/unkn0wn-root/formcache/directory"
)

const (
	PluginName     = "forumify/forumify-perscom-plugin"
	PremiumVersion = "premium"

	RouteSubmissionList = "perscom_admin_submission_list"
	FormParam           = "form"
)

type leaf struct {
	label, route, icon, permission string
}

var (
	premiumItems = []leaf{
		{"Operations", "perscom_admin_operations_list", "ph ph-airplane-takeoff", "perscom-io.admin.operations.view"},
		{"Courses", "perscom_admin_courses_list", "ph ph-graduation-cap", "perscom-io.admin.courses.view"},
	}
	organizationItems = []leaf{
		{label: "Units", route: "perscom_admin_unit_list"},
		{label: "Positions", route: "perscom_admin_position_list"},
		{label: "Specialties", route: "perscom_admin_specialty_list"},
		{label: "Statuses", route: "perscom_admin_status_list"},
		{label: "Awards", route: "perscom_admin_award_list"},
		{label: "Qualifications", route: "perscom_admin_qualification_list"},
	}
)

// Builder composes the PERSCOM admin menu.
type Builder struct {
	urls     URLGenerator
	forms    Forms
	versions VersionChecker
}

func NewBuilder(urls URLGenerator, forms Forms, versions VersionChecker) *Builder {
	return &Builder{urls: urls, forms: forms, versions: versions}
}

// Build appends the PERSCOM section to root and returns it.
func (b *Builder) Build(ctx context.Context, root *Menu) *Menu {
	perscom := &Menu{Label: "PERSCOM", Icon: "ph ph-shield-chevron", Permission: "perscom-io.admin.view"}
	perscom.Add(
		b.leaf(leaf{"Configuration", "perscom_admin_configuration", "ph ph-wrench", "perscom-io.admin.configuration.manage"}),
		b.leaf(leaf{"Users", "perscom_admin_user_list", "ph ph-users", "perscom-io.admin.users.view"}),
		b.submissions(ctx),
	)

	if b.versions != nil && b.versions.IsVersionInstalled(PluginName, PremiumVersion) {
		for _, l := range premiumItems {
			perscom.Add(b.leaf(l))
		}
	}

	org := &Menu{Label: "Organization", Icon: "ph ph-buildings", Permission: "perscom-io.admin.organization.view"}
	for _, l := range organizationItems {
		org.Add(b.leaf(l))
	}
	perscom.Add(org)

	if root != nil {
		root.Add(perscom)
	}
	return perscom
}

// submissions lists every known form, each linking to the submission list
// filtered by its id.
func (b *Builder) submissions(ctx context.Context) *Menu {
	m := &Menu{Label: "Submissions", Icon: "ph ph-table", Permission: "perscom-io.admin.submissions.view"}
	m.Add(&Menu{Label: "View All", Link: b.urls.Generate(RouteSubmissionList, nil)})

	var forms directory.FormDirectory
	if b.forms != nil {
		forms = b.forms.Forms(ctx)
	}
	for id, name := range forms.All() {
		m.Add(&Menu{Label: name, Link: b.urls.Generate(RouteSubmissionList, map[string]string{FormParam: id})})
	}
	return m
}

func (b *Builder) leaf(l leaf) *Menu {
	return &Menu{Label: l.label, Link: b.urls.Generate(l.route, nil), Icon: l.icon, Permission: l.permission}
}
