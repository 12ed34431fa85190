package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

var panelCatalog = newCatalog()

// entry is one message in every bundled language.
type entry struct {
	en, de string
}

var messages = map[string]entry{
	// generic
	"notallowed":          {"Not allowed to execute given command.", "Sie dürfen diesen Befehl nicht ausführen."},
	"noresources":         {"No more resources available", "Keine weiteren Ressourcen verfügbar"},
	"resourceunsatisfied": {"Required resource unsatisfied.", "Benötigte Ressource nicht verfügbar."},
	"notimplemented":      {"This command is not implemented.", "Dieser Befehl ist nicht implementiert."},
	"invalidbody":         {"Invalid request body", "Ungültiger Anfrageinhalt"},
	"unknowncommand":      {"Unknown command %s", "Unbekannter Befehl %s"},
	"modulenotfound":      {"The required module \"%s\" could not be found", "Das benötigte Modul \"%s\" wurde nicht gefunden"},
	"internalerror":       {"Internal error", "Interner Fehler"},
	"stringisempty":       {"Missing input in field %s", "Fehlende Eingabe im Feld %s"},
	"stringiswrong":       {"Wrong entry in field %s", "Falsche Eingabe im Feld %s"},
	"mandatoryfield":      {"Field %s is mandatory", "Das Feld %s ist ein Pflichtfeld"},
	"intvaluetoolow":      {"The given number is too low (field %s)", "Die angegebene Zahl ist zu klein (Feld %s)"},
	"intvaluetoohigh":     {"The given number is too high (field %s)", "Die angegebene Zahl ist zu groß (Feld %s)"},

	// not found
	"domainnotfound":   {"Domain with id #%d could not be found", "Domain mit der ID #%d wurde nicht gefunden"},
	"ipportnotfound":   {"IP/port with id #%d could not be found", "IP/Port mit der ID #%d wurde nicht gefunden"},
	"phpconfnotfound":  {"php-config with id #%d could not be found", "PHP-Konfiguration mit der ID #%d wurde nicht gefunden"},
	"customernotfound": {"Customer with id #%d could not be found", "Kunde mit der ID #%d wurde nicht gefunden"},
	"customerloginnotfound": {"Customer with loginname '%s' could not be found",
		"Kunde mit dem Login '%s' wurde nicht gefunden"},
	"adminnotfound": {"Admin with id #%d could not be found", "Admin mit der ID #%d wurde nicht gefunden"},
	"adminloginnotfound": {"Admin with loginname '%s' could not be found",
		"Admin mit dem Login '%s' wurde nicht gefunden"},
	"apikeynotfound": {"API key %s could not be found", "API-Schlüssel %s wurde nicht gefunden"},

	// domains
	"admin_domain_emailsystemhostname": {"The server hostname cannot be used as customer domain.",
		"Der Server-Hostname kann nicht als Kundendomain verwendet werden."},
	"domain_nopunycode": {"You must not specify punycode (IDNA). The domain will automatically be converted.",
		"Sie dürfen kein Punycode (IDNA) angeben. Die Domain wird automatisch konvertiert."},
	"customerdoesntexist": {"The customer you have chosen doesn't exist.", "Der gewählte Kunde existiert nicht."},
	"admindoesntexist":    {"The admin you have chosen doesn't exist.", "Der gewählte Admin existiert nicht."},
	"phpsettingidwrong":   {"A PHP configuration with this id does not exist.", "Eine PHP-Konfiguration mit dieser ID existiert nicht."},
	"ipportdoesntexist": {"The IP/port combination you have chosen doesn't exist.",
		"Die gewählte IP/Port-Kombination existiert nicht."},
	"noipportgiven": {"No IP/port given", "Keine IP/Port-Kombination angegeben"},
	"noipsgiven": {"No IPs given, unable to add domain (no default IPs set?)",
		"Keine IPs angegeben, Domain kann nicht angelegt werden (keine Standard-IPs gesetzt?)"},
	"nowildcardwithletsencrypt": {"Let's Encrypt cannot handle wildcard domains using ACME v1. Please set the ServerAlias to WWW or disable it completely.",
		"Let's Encrypt kann mit ACME v1 keine Wildcard-Domains behandeln. Bitte ServerAlias auf WWW setzen oder deaktivieren."},
	"nowildcardwithletsencryptv2": {"Let's Encrypt cannot issue wildcard certificates without the dns-01 challenge. Please set the ServerAlias to WWW or disable it completely.",
		"Let's Encrypt kann ohne dns-01 keine Wildcard-Zertifikate ausstellen. Bitte ServerAlias auf WWW setzen oder deaktivieren."},
	"pathmaynotcontaincolon": {"The path you have entered should not contain a colon (\":\").",
		"Der angegebene Pfad darf keinen Doppelpunkt (\":\") enthalten."},
	"domainalreadyexists": {"The domain %s is already assigned to a customer", "Die Domain %s ist bereits einem Kunden zugeordnet"},
	"domainisaliasorothercustomer": {"The selected alias domain is either itself an alias domain or belongs to another customer.",
		"Die gewählte Alias-Domain ist selbst eine Alias-Domain oder gehört einem anderen Kunden."},
	"adduserfirst": {"Please create a customer first", "Bitte legen Sie zuerst einen Kunden an"},

	// ips and ports
	"invalidip":     {"Invalid IP address: %s", "Ungültige IP-Adresse: %s"},
	"myipnotdouble": {"This IP/port combination already exists.", "Diese IP/Port-Kombination existiert bereits."},
	"cantchangesystemip": {"You cannot change the last system IP. Create another IP/port combination for the system IP or change the system IP first.",
		"Die letzte System-IP kann nicht geändert werden. Legen Sie zuerst eine weitere IP/Port-Kombination an oder ändern Sie die System-IP."},
	"ipstillhasdomains": {"The IP/port combination you want to delete still has domains assigned to it.",
		"Der IP/Port-Kombination sind noch Domains zugeordnet."},
	"cantdeletedefaultip": {"You cannot delete a default IP/port combination.",
		"Eine Standard-IP/Port-Kombination kann nicht gelöscht werden."},
	"cantdeletesystemip": {"You cannot delete the last system IP.", "Die letzte System-IP kann nicht gelöscht werden."},

	// php settings
	"descriptioninvalid": {"The description is too short, too long or contains illegal characters.",
		"Die Beschreibung ist zu kurz, zu lang oder enthält ungültige Zeichen."},
	"cannotdeletehostnamephpconfig": {"This PHP configuration is used by the panel vhost and cannot be deleted.",
		"Diese PHP-Konfiguration wird vom Panel-Vhost verwendet und kann nicht gelöscht werden."},
	"cannotdeletedefaultphpconfig": {"This PHP configuration is set as default and cannot be deleted.",
		"Diese PHP-Konfiguration ist als Standard gesetzt und kann nicht gelöscht werden."},
	"phpsettingsnotused": {"not used", "nicht verwendet"},

	// backups
	"backupnoadd":    {"You cannot add a backup entry", "Backup-Einträge können nicht angelegt werden"},
	"backupnoupdate": {"You cannot update a backup entry", "Backup-Einträge können nicht geändert werden"},

	// customers / admins
	"loginnameexists":  {"Loginname %s already exists", "Der Login %s existiert bereits"},
	"loginnameiswrong": {"Loginname \"%s\" contains illegal characters.", "Der Login \"%s\" enthält ungültige Zeichen."},
	"emailiswrong":     {"Email address \"%s\" contains illegal characters or is incomplete", "Die E-Mail-Adresse \"%s\" ist ungültig"},
	"notrequiredpasswordlength": {"The given password is too short. Please enter at least %d characters.",
		"Das Passwort ist zu kurz. Bitte mindestens %d Zeichen eingeben."},
	"notrequiredpasswordcomplexity": {"The specified password complexity was not satisfied.",
		"Die geforderte Passwort-Komplexität wurde nicht erfüllt."},

	// system
	"noupdatesavail": {"You already have the latest version installed.", "Sie haben bereits die neueste Version installiert."},
	"customized_version": {"It seems that you are using a customized version, support is not possible.",
		"Sie verwenden offenbar eine angepasste Version, Support ist nicht möglich."},
	"newerversion": {"There is a newer version available: \"%s\" (Your current version is: %s)",
		"Es ist eine neuere Version verfügbar: \"%s\" (Ihre aktuelle Version: %s)"},
	"updatecheckfailed": {"Could not check for updates: %s", "Update-Prüfung fehlgeschlagen: %s"},

	// auth
	"loginfailed":     {"Invalid username or password", "Ungültiger Benutzername oder Passwort"},
	"toomanyrequests": {"Too many requests, try again later", "Zu viele Anfragen, bitte später erneut versuchen"},
	"unauthorized":    {"Authentication required", "Anmeldung erforderlich"},
	"csrfinvalid":     {"Invalid or missing CSRF token", "Ungültiges oder fehlendes CSRF-Token"},
	"accountlocked":   {"Your account is deactivated", "Ihr Konto ist deaktiviert"},
	"apidisabled":     {"API access is disabled", "Der API-Zugriff ist deaktiviert"},

	// field labels
	"mydomain":        {"Domain", "Domain"},
	"mydocumentroot":  {"Documentroot", "Documentroot"},
	"myport":          {"Port", "Port"},
	"myloginname":     {"Loginname", "Login"},
	"mypassword":      {"Password", "Passwort"},
	"myemail":         {"Email", "E-Mail"},
	"myname":          {"Name", "Name"},
	"mydescription":   {"Description", "Beschreibung"},
	"mydate":          {"Date", "Datum"},
	"ip":              {"IP address", "IP-Adresse"},
	"zonefile":        {"DNS zone file", "DNS-Zonendatei"},
	"specialsettings": {"Own vHost settings", "Eigene vHost-Einstellungen"},
	"default_vhostconf_domain": {"Default vHost settings for every domain container",
		"Standard-vHost-Einstellungen für jeden Domain-Container"},
	"custom_notes":          {"Notes", "Notizen"},
	"phpsettings":           {"php.ini settings", "php.ini-Einstellungen"},
	"file_extensions":       {"File extensions", "Dateiendungen"},
	"mod_fcgid_starter":     {"Processes for FastCGI", "Prozesse für FastCGI"},
	"mod_fcgid_maxrequests": {"Maximum php requests", "Maximale PHP-Anfragen"},
	"mod_fcgid_umask":       {"Umask (default: 022)", "Umask (Standard: 022)"},
	"phpfpm_reqtermtimeout": {"Request terminate timeout", "Request-Terminate-Timeout"},
	"phpfpm_reqslowtimeout": {"Request slowlog timeout", "Request-Slowlog-Timeout"},
	"registration_date":     {"Registration date", "Registrierungsdatum"},
	"termination_date":      {"Termination date", "Kündigungsdatum"},

	// navigation
	"menu.dashboard":   {"Dashboard", "Übersicht"},
	"menu.resources":   {"Resources", "Ressourcen"},
	"menu.customers":   {"Customers", "Kunden"},
	"menu.admins":      {"Admins", "Admins"},
	"menu.domains":     {"Domains", "Domains"},
	"menu.backups":     {"Backups", "Backups"},
	"menu.server":      {"Server", "Server"},
	"menu.ipsandports": {"IPs and ports", "IPs und Ports"},
	"menu.phpsettings": {"PHP configurations", "PHP-Konfigurationen"},
	"menu.settings":    {"Settings", "Einstellungen"},
	"menu.tasks":       {"Pending tasks", "Ausstehende Aufgaben"},
	"menu.updates":     {"Updates", "Updates"},
	"menu.account":     {"Account", "Konto"},
	"menu.apikeys":     {"API keys", "API-Schlüssel"},
	"menu.logout":      {"Logout", "Abmelden"},

	// forms and listings
	"form.admin_add":             {"Create admin", "Admin anlegen"},
	"form.create":                {"Create", "Anlegen"},
	"form.accountdata":           {"Account data", "Kontodaten"},
	"form.contactdata":           {"Contact data", "Kontaktdaten"},
	"form.servicedata":           {"Service data", "Dienstdaten"},
	"form.passwordsuggestion":    {"Password suggestion", "Passwortvorschlag"},
	"form.language":              {"Language", "Sprache"},
	"form.api_allowed":           {"Allow API access", "API-Zugriff erlauben"},
	"form.custom_notes":          {"Notes", "Notizen"},
	"form.custom_notes_show":     {"Show notes to the account", "Notizen dem Konto anzeigen"},
	"form.ipaddress":             {"IP address", "IP-Adresse"},
	"form.allips":                {"All IPs", "Alle IPs"},
	"form.change_serversettings": {"Can change server settings", "Darf Servereinstellungen ändern"},
	"form.customers":             {"Customers", "Kunden"},
	"form.customers_see_all":     {"Can see all customers", "Darf alle Kunden sehen"},
	"form.domains":               {"Domains", "Domains"},
	"form.domains_see_all":       {"Can see all domains", "Darf alle Domains sehen"},
	"form.caneditphpsettings":    {"Can edit PHP configurations", "Darf PHP-Konfigurationen bearbeiten"},
	"listing.path":               {"Path", "Pfad"},
	"listing.edit":               {"Edit", "Bearbeiten"},
	"listing.logfiles":           {"Log files", "Logdateien"},
	"listing.dnseditor":          {"DNS editor", "DNS-Editor"},
	"listing.delete":             {"Delete", "Löschen"},
}

// Keys returns every catalog key. Used by tests to check translations exist.
func Keys() []string {
	keys := make([]string, 0, len(messages))
	for k := range messages {
		keys = append(keys, k)
	}
	return keys
}

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(DefaultLang))
	for key, m := range messages {
		_ = b.SetString(language.English, key, m.en)
		_ = b.SetString(language.German, key, m.de)
	}
	return b
}
