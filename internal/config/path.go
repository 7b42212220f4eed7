package config

const (
	//? These paths must match the paths in the embed directive

	StaticLocalDir = "static"
	StaticUrlPath  = "/" + StaticLocalDir + "/"

	PostsLocalDir = "posts"
	PostsUrlPath  = "/" + PostsLocalDir + "/"

	CategoriesUrlPath = "/categories/"
	TagsUrlPath       = "/tags/"
	BlobUrlPath       = "/blob/"

	TemplatesLocalDir = "templates"

	TemplateLayout     = "layout.html"
	TemplateIndex      = "index.html"
	TemplatePost       = "post.html"
	TemplateEditor     = "editor.html"
	TemplateManage     = "manage.html"
	TemplateCategories = "categories.html"
	TemplateTags       = "tags.html"
	TemplateListing    = "listing.html"
	TemplateFavorites  = "favorites.html"
	TemplateProfile    = "profile.html"
	TemplateAuth       = "auth.html"
	TemplatePartials   = "partials.html"
)
