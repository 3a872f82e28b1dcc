package prayer

// Curated is the fixed set of one location per district used for commands and
// as the first tier of name lookup.
var Curated = []Location{
	{ID: 102, Name: "Kasaragod", District: "Kasaragod"},
	{ID: 206, Name: "Kannur", District: "Kannur"},
	{ID: 303, Name: "Kalpetta", District: "Wayanad"},
	{ID: 408, Name: "Kozhikode North", District: "Kozhikode"},
	{ID: 508, Name: "Malappuram", District: "Malappuram"},
	{ID: 608, Name: "Palakkad", District: "Palakkad"},
	{ID: 707, Name: "Thrissur", District: "Thrissur"},
	{ID: 807, Name: "Kochi", District: "Ernakulam"},
	{ID: 904, Name: "Idukki", District: "Idukki"},
	{ID: 1005, Name: "Kottayam", District: "Kottayam"},
	{ID: 1103, Name: "Alappuzha", District: "Alappuzha"},
	{ID: 1201, Name: "Thiruvalla", District: "Pathanamthitta"},
	{ID: 1309, Name: "Kollam", District: "Kollam"},
	{ID: 1408, Name: "Thiruvananthapuram", District: "Trivandrum"},
}
